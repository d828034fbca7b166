// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package main

import (
	"encoding/json"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/juju/errors"
	"github.com/juju/gnuflag"
	"gopkg.in/yaml.v3"
)

// Formatter converts an arbitrary object into a []byte.
type Formatter func(value interface{}) ([]byte, error)

func formatYaml(value interface{}) ([]byte, error) {
	if value == nil {
		return nil, nil
	}
	return yaml.Marshal(value)
}

func formatJSON(value interface{}) ([]byte, error) {
	if value == nil {
		return nil, nil
	}
	return json.MarshalIndent(value, "", "  ")
}

// DefaultFormatters are the --format choices for query output.
var DefaultFormatters = map[string]Formatter{
	"yaml": formatYaml,
	"json": formatJSON,
}

// formatterValue implements gnuflag.Value for the --format flag.
type formatterValue struct {
	name       string
	formatters map[string]Formatter
}

func newFormatterValue(initial string, formatters map[string]Formatter) *formatterValue {
	v := &formatterValue{formatters: formatters}
	if err := v.Set(initial); err != nil {
		panic(err)
	}
	return v
}

// Set is part of the gnuflag.Value interface.
func (v *formatterValue) Set(value string) error {
	if v.formatters[value] == nil {
		return errors.NotValidf("format %q", value)
	}
	v.name = value
	return nil
}

// String is part of the gnuflag.Value interface.
func (v *formatterValue) String() string {
	return v.name
}

func (v *formatterValue) doc() string {
	choices := make([]string, 0, len(v.formatters))
	for name := range v.formatters {
		choices = append(choices, name)
	}
	sort.Strings(choices)
	return "output format (" + strings.Join(choices, "|") + ")"
}

// Output writes values to a file or to stdout as directed by the
// --format and -o flags.
type Output struct {
	formatter *formatterValue
	outPath   string
}

// AddFlags registers the output flags on f.
func (o *Output) AddFlags(f *gnuflag.FlagSet, initial string, formatters map[string]Formatter) {
	o.formatter = newFormatterValue(initial, formatters)
	f.Var(o.formatter, "format", o.formatter.doc())
	f.StringVar(&o.outPath, "o", "", "write output to this file")
	f.StringVar(&o.outPath, "output", "", "")
}

// Write formats value and writes it out.
func (o *Output) Write(stdout io.Writer, value interface{}) error {
	data, err := o.formatter.formatters[o.formatter.name](value)
	if err != nil {
		return errors.Trace(err)
	}
	if data == nil {
		return nil
	}
	if !strings.HasSuffix(string(data), "\n") {
		data = append(data, '\n')
	}
	return o.WriteRaw(stdout, data)
}

// WriteRaw writes data unformatted.
func (o *Output) WriteRaw(stdout io.Writer, data []byte) error {
	if o.outPath == "" {
		_, err := stdout.Write(data)
		return errors.Trace(err)
	}
	return errors.Trace(os.WriteFile(o.outPath, data, 0644))
}
