// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// qdbgen reflects tables from a running server and writes one Go
// source stub per table, so the schema layer has declared accessors
// to build on. It is a thin consumer of the session API; the schema
// layer itself lives elsewhere.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/qdb-client/qdb/connspec"
	"github.com/qdb-client/qdb/session"
)

var (
	host    string
	port    int
	tables  string
	output  string
	user    string
	pass    string
	timeout time.Duration
)

func init() {
	flag.StringVar(&host, "host", "localhost", "server host")
	flag.IntVar(&port, "port", 5000, "server port")
	flag.StringVar(&tables, "tables", "", "comma-separated tables to generate (default: all)")
	flag.StringVar(&output, "output", ".", "output directory")
	flag.StringVar(&user, "user", "", "username")
	flag.StringVar(&pass, "pass", "", "password")
	flag.DurationVar(&timeout, "timeout", 10*time.Second, "connect timeout")
}

func exitf(f string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, f, args...)
	os.Exit(1)
}

func main() {
	args := os.Args[1:]
	if len(args) < 1 || args[0] != "generate" {
		exitf("usage: qdbgen generate --host H --port P --tables t1,t2 [--output DIR]\n")
	}
	flag.CommandLine.Init(os.Args[0], flag.ContinueOnError)
	if err := flag.CommandLine.Parse(args[1:]); err != nil {
		os.Exit(1)
	}
	spec := connspec.ConnSpec{
		Host:     host,
		Port:     port,
		User:     user,
		Password: pass,
		Timeout:  timeout,
		Retry:    connspec.DefaultRetryPolicy(),
	}
	ctx := context.Background()
	s := session.New(spec)
	defer s.Close()

	metas, err := collect(ctx, s)
	if err != nil {
		exitf("qdbgen: %s\n", err)
	}
	for _, m := range metas {
		path := filepath.Join(output, m.Name+"_gen.go")
		if err := os.WriteFile(path, []byte(render(m)), 0644); err != nil {
			exitf("qdbgen: writing %s: %s\n", path, err)
		}
		fmt.Printf("wrote %s\n", path)
	}
}

func collect(ctx context.Context, s *session.Session) ([]*session.TableMeta, error) {
	if tables == "" {
		return s.ReflectAll(ctx)
	}
	var out []*session.TableMeta
	for _, name := range strings.Split(tables, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		m, err := s.Reflect(ctx, name)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// goType maps the server's one-character type code to the Go type the
// stub declares for that column.
func goType(c byte) string {
	switch c {
	case 'b':
		return "bool"
	case 'x', 'h', 'i', 'j':
		return "int64"
	case 'e', 'f':
		return "float64"
	case 's', 'c', 'C':
		return "string"
	case 'g':
		return "uuid.UUID"
	case 'p', 'm', 'd', 'z', 'u', 'v', 't':
		return "time.Time"
	case 'n':
		return "time.Duration"
	default:
		return "interface{}"
	}
}

func render(m *session.TableMeta) string {
	var b strings.Builder
	fmt.Fprintf(&b, "// Code generated by qdbgen; DO NOT EDIT.\n\npackage schema\n\n")
	fmt.Fprintf(&b, "// %s mirrors the server table %q.\n", exportName(m.Name), m.Name)
	fmt.Fprintf(&b, "type %s struct {\n", exportName(m.Name))
	for _, c := range m.Columns {
		key := ""
		if c.Keyed {
			key = " // key column"
		}
		fmt.Fprintf(&b, "\t%s %s `qdb:%q`%s\n", exportName(c.Name), goType(c.TypeChar), c.Name, key)
	}
	fmt.Fprintf(&b, "}\n")
	return b.String()
}

func exportName(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
