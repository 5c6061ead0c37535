package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const (
	lenientBooleanTypeName     = "switch"
	lenientBooleanAcceptedList = "true, false, yes, no, on, off, 1, 0"
	errorLenientBooleanFormat  = "invalid value %q for --%s; accepted values: %s"
)

var booleanLiterals = map[string]bool{
	"true": true, "t": true, "1": true, "yes": true, "y": true, "on": true,
	"false": false, "f": false, "0": false, "no": false, "n": false, "off": false,
}

// lenientBoolean is a flag value that accepts yes/no style literals and may
// appear without a value.
type lenientBoolean struct {
	target *bool
	name   string
}

func (value *lenientBoolean) Set(input string) error {
	normalized := strings.ToLower(strings.TrimSpace(input))
	if normalized == "" {
		normalized = "true"
	}
	parsed, known := booleanLiterals[normalized]
	if !known {
		return fmt.Errorf(errorLenientBooleanFormat, input, value.name, lenientBooleanAcceptedList)
	}
	*value.target = parsed
	return nil
}

func (value *lenientBoolean) String() string {
	if value == nil || value.target == nil {
		return "false"
	}
	return strconv.FormatBool(*value.target)
}

func (value *lenientBoolean) Type() string {
	return lenientBooleanTypeName
}

func registerBooleanFlag(flagSet *pflag.FlagSet, target *bool, name string, defaultValue bool, usage string) {
	*target = defaultValue
	flagSet.Var(&lenientBoolean{target: target, name: name}, name, usage)
	flag := flagSet.Lookup(name)
	flag.DefValue = strconv.FormatBool(defaultValue)
	flag.NoOptDefVal = "true"
}

// normalizeBooleanFlagArguments joins "--flag value" into "--flag=value" for
// lenient boolean flags when value is a boolean literal. pflag would
// otherwise treat the literal as a positional argument.
func normalizeBooleanFlagArguments(command *cobra.Command, arguments []string) []string {
	switchNames := map[string]struct{}{}
	collectSwitchNames(command, switchNames)
	if len(switchNames) == 0 {
		return arguments
	}
	normalized := make([]string, 0, len(arguments))
	for index := 0; index < len(arguments); index++ {
		current := arguments[index]
		if current == "--" {
			return append(normalized, arguments[index:]...)
		}
		name, isLongFlag := strings.CutPrefix(current, "--")
		if isLongFlag && !strings.Contains(name, "=") && index+1 < len(arguments) {
			if _, isSwitch := switchNames[name]; isSwitch {
				next := strings.ToLower(strings.TrimSpace(arguments[index+1]))
				if _, isLiteral := booleanLiterals[next]; isLiteral {
					normalized = append(normalized, current+"="+arguments[index+1])
					index++
					continue
				}
			}
		}
		normalized = append(normalized, current)
	}
	return normalized
}

func collectSwitchNames(command *cobra.Command, target map[string]struct{}) {
	visit := func(flag *pflag.Flag) {
		if flag.Value.Type() == lenientBooleanTypeName {
			target[flag.Name] = struct{}{}
		}
	}
	command.PersistentFlags().VisitAll(visit)
	command.Flags().VisitAll(visit)
	for _, child := range command.Commands() {
		collectSwitchNames(child, target)
	}
}
