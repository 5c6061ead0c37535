package analyzer

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/temirov/reposcope/internal/types"
	"github.com/temirov/reposcope/internal/utils"
)

const warningReadDirectoryMessage = "skipping unreadable directory"

// structureBuilder mirrors a directory into StructureNodes down to maxDepth.
// The root is listed at depth zero.
type structureBuilder struct {
	rootPath string
	maxDepth int
	rules    Rules
	logger   *zap.Logger
}

func (builder structureBuilder) build(ctx context.Context) ([]types.StructureNode, error) {
	return builder.buildLevel(ctx, builder.rootPath, 0)
}

func (builder structureBuilder) buildLevel(ctx context.Context, directoryPath string, depth int) ([]types.StructureNode, error) {
	if contextError := ctx.Err(); contextError != nil {
		return nil, contextError
	}
	directoryEntries, readDirectoryError := os.ReadDir(directoryPath)
	if readDirectoryError != nil {
		builder.logger.Warn(warningReadDirectoryMessage, zap.String("directory", directoryPath), zap.Error(readDirectoryError))
		return []types.StructureNode{}, nil
	}

	nodes := make([]types.StructureNode, 0, len(directoryEntries))
	for _, directoryEntry := range directoryEntries {
		if directoryEntry.Type()&fs.ModeSymlink != 0 {
			continue
		}
		childPath := filepath.Join(directoryPath, directoryEntry.Name())
		relativeChildPath := utils.RelativePathOrSelf(childPath, builder.rootPath)

		if directoryEntry.IsDir() {
			if builder.rules.ExcludeDirectory(relativeChildPath) {
				continue
			}
			node := types.StructureNode{Name: directoryEntry.Name(), Type: types.NodeTypeDirectory}
			if depth+1 > builder.maxDepth {
				node.Truncated = true
			} else {
				children, buildError := builder.buildLevel(ctx, childPath, depth+1)
				if buildError != nil {
					return nil, buildError
				}
				node.Children = children
			}
			nodes = append(nodes, node)
			continue
		}

		if !directoryEntry.Type().IsRegular() || builder.rules.ExcludeFile(relativeChildPath) {
			continue
		}
		node := types.StructureNode{
			Name:      directoryEntry.Name(),
			Type:      types.NodeTypeFile,
			Extension: FileExtension(directoryEntry.Name()),
		}
		if entryInfo, infoError := directoryEntry.Info(); infoError == nil {
			node.Size = entryInfo.Size()
		}
		nodes = append(nodes, node)
	}

	sortStructureNodes(nodes)
	return nodes, nil
}

// sortStructureNodes orders directories before files, then by case-insensitive name.
func sortStructureNodes(nodes []types.StructureNode) {
	sort.SliceStable(nodes, func(leftIndex, rightIndex int) bool {
		left, right := nodes[leftIndex], nodes[rightIndex]
		if left.IsFile() != right.IsFile() {
			return !left.IsFile()
		}
		leftName, rightName := strings.ToLower(left.Name), strings.ToLower(right.Name)
		if leftName != rightName {
			return leftName < rightName
		}
		return left.Name < right.Name
	})
}
