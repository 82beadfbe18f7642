// Copyright 2026 Forge Authors
// SPDX-License-Identifier: AGPL-3.0-only

// Package python parses Python source with go-tree-sitter, extracting
// the Service boundary from pyproject.toml/setup.py/requirements.txt
// and boto3/requests/httpx/aiohttp usage from the AST.
package python

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/forgelabs/forge/pkg/discovery"
)

var frameworkDeps = []string{"fastapi", "flask", "django", "aiohttp"}

// Parser implements parse.Parser for .py and the three manifest shapes
// pyproject.toml/setup.py/requirements.txt.
type Parser struct {
	mu     sync.Mutex // serializes use of the tree-sitter parser
	parser *sitter.Parser
}

// New constructs a ready-to-use Parser.
func New() *Parser {
	p := &Parser{parser: sitter.NewParser()}
	p.parser.SetLanguage(python.GetLanguage())
	return p
}

func (p *Parser) Name() string { return "python" }

func (p *Parser) SupportedExtensions() []string {
	return []string{".py", "pyproject.toml", "setup.py", "requirements.txt"}
}

func (p *Parser) ParseFile(path string, content []byte) ([]discovery.Discovery, error) {
	base := lastSegment(path, "/")
	switch base {
	case "pyproject.toml":
		return parsePyprojectToml(path, content)
	case "setup.py":
		return parseSetupPy(path, content)
	case "requirements.txt":
		return parseRequirementsTxt(path, content)
	}

	p.mu.Lock()
	tree, err := p.parser.ParseCtx(context.Background(), nil, content)
	p.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("tree-sitter parse %s: %w", path, err)
	}
	defer tree.Close()

	w := &walker{path: path, content: content}
	w.walk(tree.RootNode())
	return w.discoveries, nil
}

func lastSegment(s, sep string) string {
	idx := strings.LastIndex(s, sep)
	if idx == -1 {
		return s
	}
	return s[idx+len(sep):]
}

func detectFramework(text string) string {
	lower := strings.ToLower(text)
	for _, fw := range frameworkDeps {
		if strings.Contains(lower, fw) {
			return fw
		}
	}
	return ""
}

// parsePyprojectToml scans for a `name = "..."` line under a
// [project]/[tool.poetry] table; a line scan is enough here since we
// only need the one field and bringing in a TOML decoder for this
// single read isn't worth the dependency.
func parsePyprojectToml(path string, content []byte) ([]discovery.Discovery, error) {
	name := ""
	table := ""
	scanner := bufio.NewScanner(bytes.NewReader(content))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "[") {
			table = line
			continue
		}
		if table != "[project]" && table != "[tool.poetry]" {
			continue
		}
		if strings.HasPrefix(line, "name") && strings.Contains(line, "=") {
			parts := strings.SplitN(line, "=", 2)
			name = unquote(strings.TrimSpace(parts[1]))
			break
		}
	}
	if name == "" {
		return nil, nil
	}
	return []discovery.Discovery{{
		Kind:       discovery.KindService,
		SourceFile: path,
		SourceLine: 1,
		Service: &discovery.Service{
			Name:      name,
			Language:  "python",
			Framework: detectFramework(string(content)),
		},
	}}, nil
}

func parseSetupPy(path string, content []byte) ([]discovery.Discovery, error) {
	name := ""
	scanner := bufio.NewScanner(bytes.NewReader(content))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "name") && strings.Contains(line, "=") {
			parts := strings.SplitN(line, "=", 2)
			name = unquote(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(parts[1]), ",")))
			break
		}
	}
	if name == "" {
		return nil, nil
	}
	return []discovery.Discovery{{
		Kind:       discovery.KindService,
		SourceFile: path,
		SourceLine: 1,
		Service: &discovery.Service{
			Name:      name,
			Language:  "python",
			Framework: detectFramework(string(content)),
		},
	}}, nil
}

// parseRequirementsTxt never names the service (requirements.txt has
// no name field); it only contributes a framework signal, recorded
// against the repo's owner service by the graph builder.
func parseRequirementsTxt(path string, content []byte) ([]discovery.Discovery, error) {
	framework := detectFramework(string(content))
	if framework == "" {
		return nil, nil
	}
	return []discovery.Discovery{{
		Kind:       discovery.KindService,
		SourceFile: path,
		SourceLine: 1,
		Service: &discovery.Service{
			Framework: framework,
			Language:  "python",
		},
	}}, nil
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '"' || first == '\'') && first == last {
			return s[1 : len(s)-1]
		}
	}
	return s
}

type walker struct {
	path        string
	content     []byte
	discoveries []discovery.Discovery
}

func (w *walker) text(n *sitter.Node) string { return n.Content(w.content) }
func (w *walker) line(n *sitter.Node) int    { return int(n.StartPoint().Row) + 1 }

func (w *walker) walk(n *sitter.Node) {
	if n == nil {
		return
	}
	switch n.Type() {
	case "import_statement", "import_from_statement":
		w.handleImport(n)
	case "call":
		w.handleCall(n)
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		w.walk(n.Child(i))
	}
}

func (w *walker) handleImport(n *sitter.Node) {
	if n.Type() == "import_statement" {
		for i := 0; i < int(n.NamedChildCount()); i++ {
			child := n.NamedChild(i)
			if child.Type() == "dotted_name" || child.Type() == "aliased_import" {
				module := w.moduleName(child)
				w.emitImport(n, module, false)
			}
		}
		return
	}

	moduleNode := n.ChildByFieldName("module_name")
	if moduleNode == nil {
		return
	}
	module := w.moduleName(moduleNode)
	w.emitImport(n, module, strings.HasPrefix(module, "."))
}

func (w *walker) moduleName(n *sitter.Node) string {
	if n.Type() == "aliased_import" {
		if name := n.ChildByFieldName("name"); name != nil {
			return w.text(name)
		}
	}
	return w.text(n)
}

func (w *walker) emitImport(n *sitter.Node, module string, relative bool) {
	if module == "" {
		return
	}
	w.discoveries = append(w.discoveries, discovery.Discovery{
		Kind:       discovery.KindImport,
		SourceFile: w.path,
		SourceLine: w.line(n),
		Import:     &discovery.Import{Module: module, IsRelative: relative},
	})
}

var dynamoMethodOps = map[string]discovery.Operation{
	"get_item":    discovery.OpRead,
	"query":       discovery.OpRead,
	"scan":        discovery.OpRead,
	"put_item":    discovery.OpWrite,
	"update_item": discovery.OpWrite,
	"batch_write_item": discovery.OpWrite,
	"batch_get_item":   discovery.OpRead,
}

func (w *walker) handleCall(n *sitter.Node) {
	fnNode := n.ChildByFieldName("function")
	argsNode := n.ChildByFieldName("arguments")
	if fnNode == nil {
		return
	}
	callee := w.text(fnNode)
	method := lastSegment(callee, ".")

	if op, ok := dynamoMethodOps[method]; ok && looksLikeDynamo(callee) {
		table := findKeywordString(w, argsNode, "TableName")
		w.discoveries = append(w.discoveries, discovery.Discovery{
			Kind:       discovery.KindDatabaseAccess,
			SourceFile: w.path,
			SourceLine: w.line(n),
			DatabaseAccess: &discovery.DatabaseAccess{
				DBType:          "dynamodb",
				TableName:       table,
				Operation:       op,
				DetectionMethod: callee,
			},
		})
		return
	}

	if isHTTPCall(callee) {
		target := ""
		if argsNode != nil && argsNode.NamedChildCount() > 0 {
			first := argsNode.NamedChild(0)
			if first.Type() == "string" {
				target = unquote(w.text(first))
			}
		}
		w.discoveries = append(w.discoveries, discovery.Discovery{
			Kind:       discovery.KindAPICall,
			SourceFile: w.path,
			SourceLine: w.line(n),
			APICall: &discovery.APICall{
				Target:          target,
				Method:          strings.ToUpper(method),
				DetectionMethod: callee,
			},
		})
		return
	}

	if method == "send_message" && strings.Contains(strings.ToLower(callee), "sqs") || strings.Contains(callee, "client('sqs')") {
		name := findKeywordString(w, argsNode, "QueueUrl")
		w.discoveries = append(w.discoveries, discovery.Discovery{
			Kind:       discovery.KindQueueOperation,
			SourceFile: w.path,
			SourceLine: w.line(n),
			QueueOperation: &discovery.QueueOperation{
				QueueType: "sqs",
				QueueName: name,
				Operation: discovery.OpPublish,
			},
		})
		return
	}

	if method == "publish" && strings.Contains(strings.ToLower(callee), "sns") {
		name := findKeywordString(w, argsNode, "TopicArn")
		w.discoveries = append(w.discoveries, discovery.Discovery{
			Kind:       discovery.KindQueueOperation,
			SourceFile: w.path,
			SourceLine: w.line(n),
			QueueOperation: &discovery.QueueOperation{
				QueueType: "sns",
				QueueName: name,
				Operation: discovery.OpPublish,
			},
		})
	}
}

func looksLikeDynamo(callee string) bool {
	lower := strings.ToLower(callee)
	return strings.Contains(lower, "table") || strings.Contains(lower, "dynamodb") || strings.Contains(lower, "ddb")
}

func isHTTPCall(callee string) bool {
	lower := strings.ToLower(callee)
	method := lastSegment(lower, ".")
	httpMethods := map[string]bool{"get": true, "post": true, "put": true, "delete": true, "patch": true}
	if !httpMethods[method] {
		return false
	}
	return strings.Contains(lower, "requests") || strings.Contains(lower, "httpx") || strings.Contains(lower, "session")
}

// findKeywordString searches call arguments for a Python keyword
// argument `key=value` with a string literal value.
func findKeywordString(w *walker, n *sitter.Node, key string) string {
	if n == nil {
		return ""
	}
	if n.Type() == "keyword_argument" {
		nameNode := n.ChildByFieldName("name")
		valueNode := n.ChildByFieldName("value")
		if nameNode != nil && valueNode != nil && w.text(nameNode) == key && valueNode.Type() == "string" {
			return unquote(w.text(valueNode))
		}
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		if found := findKeywordString(w, n.Child(i), key); found != "" {
			return found
		}
	}
	return ""
}
