package cmd

import (
	"bytes"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/table"
	"github.com/jedib0t/go-pretty/text"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var stdout io.Writer = os.Stdout

func printOutputWithDefaultFormat(defaultFormat string, out interface{}, columns ...string) error {

	format := viper.GetString(ArgGlobalOutput)

	if format == "" {
		format = defaultFormat
	}

	formatKey := strings.ToLower(format[0:1])

	switch formatKey {
	case "j":
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	case "y":
		enc := yaml.NewEncoder(stdout)
		defer enc.Close()
		return enc.Encode(out)
	case "t":
		segs := strings.Split(format, "=")
		if len(segs) > 1 {
			columns = strings.Split(segs[1], ",")
		}
		return renderTable(out, columns)
	default:
		return errors.Errorf("Unrecognized format %q (valid formats are 'json', 'yaml', and 'table')", format)
	}
}

func renderTable(out interface{}, columns []string) error {
	j, err := json.Marshal(out)
	if err != nil {
		return err
	}
	var mapSlice []map[string]jsoniter.RawMessage
	err = json.Unmarshal(j, &mapSlice)
	if err != nil {
		return errors.Wrapf(err, "only slices of structs or maps can be rendered as a table, but got %T", out)
	}
	if len(mapSlice) == 0 {
		return nil
	}

	keys := columns
	if len(keys) == 0 {
		for k := range mapSlice[0] {
			keys = append(keys, k)
		}
		sort.Strings(keys)
	}

	var columnConfigs []table.ColumnConfig
	var header table.Row
	for _, col := range keys {
		header = append(header, col)
		columnConfigs = append(columnConfigs, table.ColumnConfig{
			Name:   col,
			Align:  text.AlignLeft,
			VAlign: text.VAlignTop,
		})
	}

	var rows []table.Row
	for _, m := range mapSlice {
		var row table.Row
		for _, k := range keys {
			if v, ok := m[k]; ok && len(v) > 0 {
				var value string
				if bytes.HasPrefix(v, []byte("\"")) {
					_ = json.Unmarshal(v, &value)
				} else {
					value = string(v)
				}
				row = append(row, value)
			} else {
				row = append(row, "")
			}
		}
		rows = append(rows, row)
	}

	t := table.NewWriter()
	t.AppendHeader(header)
	t.SetColumnConfigs(columnConfigs)
	t.SetOutputMirror(stdout)
	t.AppendRows(rows)
	t.Render()

	return nil
}
