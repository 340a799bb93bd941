// Package display decides between human and machine output for CLI commands.
package display

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// OutputEnv forces JSON output for every command when set to "json"
const OutputEnv = "QUOTESEARCH_OUTPUT"

// ShouldOutputJSON reports whether cmd should print JSON: an explicit --json
// flag wins, otherwise QUOTESEARCH_OUTPUT=json applies.
func ShouldOutputJSON(cmd *cobra.Command) bool {
	if cmd != nil {
		if f := cmd.Flags().Lookup("json"); f != nil && f.Changed {
			v, _ := cmd.Flags().GetBool("json")
			return v
		}
	}
	return strings.EqualFold(os.Getenv(OutputEnv), "json")
}

// MarshalJSON pretty-prints v
func MarshalJSON(v interface{}) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}

// OutputJSON marshals and prints v to stdout
func OutputJSON(v interface{}) error {
	data, err := MarshalJSON(v)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	fmt.Println(string(data))
	return nil
}
