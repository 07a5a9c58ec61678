package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/cuemby/burrow/pkg/types"
	"gopkg.in/yaml.v3"
)

// stdout is replaced in tests
var stdout io.Writer = os.Stdout

func printResult(v any) error {
	if w := warningOf(v); w != "" {
		fmt.Fprintf(os.Stderr, "Warning: %s\n", w)
	}
	return encode(stdout, outputFormat, v)
}

func encode(w io.Writer, format string, v any) error {
	if format == "yaml" {
		// Go through JSON so keys match the API field names
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		var generic any
		if err := json.Unmarshal(data, &generic); err != nil {
			return err
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(generic); err != nil {
			return err
		}
		return enc.Close()
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func warningOf(v any) string {
	if r, ok := v.(*types.SyncResult); ok {
		return r.Warning
	}
	return ""
}

// redactPasswords returns copies of servers without their passwords
func redactPasswords(servers []*types.Server) []*types.Server {
	out := make([]*types.Server, len(servers))
	for i, srv := range servers {
		cp := *srv
		cp.Password = ""
		out[i] = &cp
	}
	return out
}
