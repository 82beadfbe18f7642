// Copyright 2026 Forge Authors
// SPDX-License-Identifier: AGPL-3.0-only

// Package jsts parses JavaScript and TypeScript source with
// go-tree-sitter. It walks call and import expressions looking for the
// AWS SDK, fetch/axios, and SQS/SNS shapes named in SPEC_FULL.md, plus
// package.json for the repo's Service boundary.
package jsts

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/forgelabs/forge/pkg/discovery"
)

// frameworkDeps maps a package.json dependency name to the framework
// label the graph builder records on the Service node.
var frameworkDeps = map[string]string{
	"express": "express",
	"fastify": "fastify",
	"koa":     "koa",
	"nestjs":  "nestjs",
	"next":    "next",
}

// Parser implements parse.Parser for .js/.jsx/.mjs/.cjs/.ts/.tsx and
// package.json.
type Parser struct {
	mu       sync.Mutex // serializes use of the tree-sitter parsers
	jsParser *sitter.Parser
	tsParser *sitter.Parser
}

// New constructs a ready-to-use Parser. Concurrent ParseFile calls are
// safe: the shared tree-sitter parsers are used under a mutex.
func New() *Parser {
	p := &Parser{jsParser: sitter.NewParser(), tsParser: sitter.NewParser()}
	p.jsParser.SetLanguage(javascript.GetLanguage())
	p.tsParser.SetLanguage(typescript.GetLanguage())
	return p
}

func (p *Parser) Name() string { return "javascript_typescript" }

func (p *Parser) SupportedExtensions() []string {
	return []string{".js", ".jsx", ".mjs", ".cjs", ".ts", ".tsx", "package.json"}
}

// ParseFile dispatches package.json to the manifest reader and
// everything else to the tree-sitter AST walker. A syntax error from
// tree-sitter is not treated as fatal: go-tree-sitter's parser is
// error-tolerant and still returns a best-effort tree, so we walk what
// we got rather than discarding the file.
func (p *Parser) ParseFile(path string, content []byte) ([]discovery.Discovery, error) {
	if strings.HasSuffix(path, "package.json") {
		return parsePackageJSON(path, content)
	}

	parser := p.jsParser
	if strings.HasSuffix(path, ".ts") || strings.HasSuffix(path, ".tsx") {
		parser = p.tsParser
	}

	p.mu.Lock()
	tree, err := parser.ParseCtx(context.Background(), nil, content)
	p.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("tree-sitter parse %s: %w", path, err)
	}
	defer tree.Close()

	w := &walker{path: path, content: content}
	w.walk(tree.RootNode())
	return w.discoveries, nil
}

type packageJSON struct {
	Name         string            `json:"name"`
	Main         string            `json:"main"`
	Module       string            `json:"module"`
	Dependencies map[string]string `json:"dependencies"`
}

func parsePackageJSON(path string, content []byte) ([]discovery.Discovery, error) {
	var pkg packageJSON
	if err := json.Unmarshal(content, &pkg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if pkg.Name == "" {
		return nil, nil
	}

	framework := ""
	for dep, label := range frameworkDeps {
		if _, ok := pkg.Dependencies[dep]; ok {
			framework = label
			break
		}
	}

	entry := pkg.Main
	if entry == "" {
		entry = pkg.Module
	}

	return []discovery.Discovery{{
		Kind:       discovery.KindService,
		SourceFile: path,
		SourceLine: 1,
		Service: &discovery.Service{
			Name:       pkg.Name,
			Language:   "javascript",
			Framework:  framework,
			EntryPoint: entry,
		},
	}}, nil
}

// walker accumulates discoveries while descending a tree-sitter AST.
type walker struct {
	path        string
	content     []byte
	discoveries []discovery.Discovery
}

func (w *walker) text(n *sitter.Node) string {
	return n.Content(w.content)
}

func (w *walker) line(n *sitter.Node) int {
	return int(n.StartPoint().Row) + 1
}

func (w *walker) walk(n *sitter.Node) {
	if n == nil {
		return
	}

	switch n.Type() {
	case "import_statement":
		w.handleImportStatement(n)
	case "call_expression":
		w.handleCallExpression(n)
	}

	for i := 0; i < int(n.ChildCount()); i++ {
		w.walk(n.Child(i))
	}
}

// handleImportStatement covers `import X from 'M'` and its named/star
// variants; `require('M')` is covered by handleCallExpression since
// it's a call, not an import_statement, in tree-sitter's grammar.
func (w *walker) handleImportStatement(n *sitter.Node) {
	sourceNode := n.ChildByFieldName("source")
	if sourceNode == nil {
		return
	}
	module := unquote(w.text(sourceNode))
	if module == "" {
		return
	}

	var items []string
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if child.Type() != "import_clause" {
			continue
		}
		for j := 0; j < int(child.ChildCount()); j++ {
			items = append(items, collectImportNames(child.Child(j), w)...)
		}
	}

	w.discoveries = append(w.discoveries, discovery.Discovery{
		Kind:       discovery.KindImport,
		SourceFile: w.path,
		SourceLine: w.line(n),
		Import: &discovery.Import{
			Module:        module,
			IsRelative:    strings.HasPrefix(module, "."),
			ImportedItems: items,
		},
	})
}

func collectImportNames(n *sitter.Node, w *walker) []string {
	if n == nil {
		return nil
	}
	switch n.Type() {
	case "identifier":
		return []string{w.text(n)}
	case "named_imports", "namespace_import":
		var out []string
		for i := 0; i < int(n.ChildCount()); i++ {
			out = append(out, collectImportNames(n.Child(i), w)...)
		}
		return out
	case "import_specifier":
		nameNode := n.ChildByFieldName("name")
		if nameNode != nil {
			return []string{w.text(nameNode)}
		}
	}
	return nil
}

// handleCallExpression matches require('M'), DynamoDB methods, fetch /
// axios / http.request calls, and SQS/SNS send/publish calls.
func (w *walker) handleCallExpression(n *sitter.Node) {
	fnNode := n.ChildByFieldName("function")
	argsNode := n.ChildByFieldName("arguments")
	if fnNode == nil {
		return
	}
	callee := w.text(fnNode)

	if callee == "require" {
		w.handleRequire(n, argsNode)
		return
	}

	if isDynamoMethod(callee) {
		w.emitDynamoAccess(n, callee, argsNode)
		return
	}

	if isHTTPCall(callee) {
		w.emitAPICall(n, callee, argsNode)
		return
	}

	if isQueueCall(callee) {
		w.emitQueueOperation(n, callee, argsNode)
	}
}

func (w *walker) handleRequire(n, argsNode *sitter.Node) {
	if argsNode == nil || argsNode.NamedChildCount() == 0 {
		return
	}
	module := unquote(w.text(argsNode.NamedChild(0)))
	if module == "" {
		return
	}
	w.discoveries = append(w.discoveries, discovery.Discovery{
		Kind:       discovery.KindImport,
		SourceFile: w.path,
		SourceLine: w.line(n),
		Import: &discovery.Import{
			Module:     module,
			IsRelative: strings.HasPrefix(module, "."),
		},
	})
}

// dynamoMethodOps maps the DocumentClient/Table method name suffix to
// an access operation.
var dynamoMethodOps = map[string]discovery.Operation{
	"get":    discovery.OpRead,
	"query":  discovery.OpRead,
	"scan":   discovery.OpRead,
	"put":    discovery.OpWrite,
	"update": discovery.OpWrite,
	"delete": discovery.OpWrite,
}

func isDynamoMethod(callee string) bool {
	method := lastSegment(callee)
	_, ok := dynamoMethodOps[method]
	return ok && (strings.Contains(callee, "dynamo") || strings.Contains(strings.ToLower(callee), "documentclient") ||
		strings.Contains(strings.ToLower(callee), "docclient") ||
		strings.Contains(strings.ToLower(callee), "table") || strings.Contains(strings.ToLower(callee), "ddb"))
}

func (w *walker) emitDynamoAccess(n *sitter.Node, callee string, argsNode *sitter.Node) {
	method := lastSegment(callee)
	op := dynamoMethodOps[method]

	table := ""
	if argsNode != nil {
		table = findStringProperty(w, argsNode, "TableName")
	}

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
}

func isHTTPCall(callee string) bool {
	lower := strings.ToLower(callee)
	if lower == "fetch" {
		return true
	}
	method := lastSegment(lower)
	httpMethods := map[string]bool{"get": true, "post": true, "put": true, "delete": true, "patch": true, "request": true}
	if !httpMethods[method] {
		return false
	}
	return strings.Contains(lower, "axios") || strings.Contains(lower, "http")
}

func (w *walker) emitAPICall(n *sitter.Node, callee string, argsNode *sitter.Node) {
	target := ""
	if argsNode != nil && argsNode.NamedChildCount() > 0 {
		first := argsNode.NamedChild(0)
		if first.Type() == "string" || first.Type() == "template_string" {
			target = unquote(w.text(first))
		} else if first.Type() == "object" {
			host := findStringProperty(w, first, "host")
			path := findStringProperty(w, first, "path")
			target = host + path
		}
	}

	method := ""
	if strings.ToLower(callee) != "fetch" {
		method = strings.ToUpper(lastSegment(callee))
	}

	w.discoveries = append(w.discoveries, discovery.Discovery{
		Kind:       discovery.KindAPICall,
		SourceFile: w.path,
		SourceLine: w.line(n),
		APICall: &discovery.APICall{
			Target:          target,
			Method:          method,
			DetectionMethod: callee,
		},
	})
}

func isQueueCall(callee string) bool {
	lower := strings.ToLower(callee)
	method := lastSegment(lower)
	if strings.Contains(lower, "sqs") && (method == "send" || method == "sendmessage") {
		return true
	}
	if strings.Contains(lower, "sns") && method == "publish" {
		return true
	}
	return false
}

func (w *walker) emitQueueOperation(n *sitter.Node, callee string, argsNode *sitter.Node) {
	lower := strings.ToLower(callee)
	queueType := "sqs"
	op := discovery.OpPublish
	nameKey := "QueueUrl"
	if strings.Contains(lower, "sns") {
		queueType = "sns"
		nameKey = "TopicArn"
	}

	name := ""
	if argsNode != nil {
		name = findStringProperty(w, argsNode, nameKey)
	}

	w.discoveries = append(w.discoveries, discovery.Discovery{
		Kind:       discovery.KindQueueOperation,
		SourceFile: w.path,
		SourceLine: w.line(n),
		QueueOperation: &discovery.QueueOperation{
			QueueType: queueType,
			QueueName: name,
			Operation: op,
		},
	})
}

// findStringProperty searches n (a call's arguments, or an object
// literal nested within them) for a string-valued property named key,
// anywhere in its subtree. This is deliberately shallow pattern
// matching rather than full SDK-call resolution: it catches the common
// `{ TableName: "orders" }` literal shape and gives up silently on
// anything dynamic.
func findStringProperty(w *walker, n *sitter.Node, key string) string {
	if n == nil {
		return ""
	}
	if n.Type() == "pair" {
		keyNode := n.ChildByFieldName("key")
		valueNode := n.ChildByFieldName("value")
		if keyNode != nil && valueNode != nil && unquote(w.text(keyNode)) == key {
			if valueNode.Type() == "string" {
				return unquote(w.text(valueNode))
			}
		}
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		if found := findStringProperty(w, n.Child(i), key); found != "" {
			return found
		}
	}
	return ""
}

func lastSegment(s string) string {
	idx := strings.LastIndexByte(s, '.')
	if idx == -1 {
		return s
	}
	return s[idx+1:]
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '"' || first == '\'' || first == '`') && first == last {
			return s[1 : len(s)-1]
		}
	}
	return s
}
