// Copyright 2026 Forge Authors
// SPDX-License-Identifier: AGPL-3.0-only

// Package terraform parses .tf files with hashicorp/hcl/v2, emitting
// resource-metadata discoveries for the AWS resource types SPEC_FULL.md
// names (DynamoDB, SQS, SNS, S3, Lambda) plus the Lambda
// environment-variable cross-reference to a known queue or table name.
package terraform

import (
	"fmt"
	"strings"

	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"

	"github.com/forgelabs/forge/pkg/discovery"
)

// Parser implements parse.Parser for .tf files.
type Parser struct {
	parser *hclparse.Parser
}

// New constructs a ready-to-use Parser. hclparse.Parser caches parsed
// files by name in an unguarded map, so ParseFile parses each file with
// a fresh hclparse.Parser: same-named files from different repos never
// collide, and concurrent ParseFile calls are safe.
func New() *Parser {
	return &Parser{parser: hclparse.NewParser()}
}

func (p *Parser) Name() string { return "terraform" }

func (p *Parser) SupportedExtensions() []string { return []string{".tf"} }

func (p *Parser) ParseFile(path string, content []byte) ([]discovery.Discovery, error) {
	file, diags := hclparse.NewParser().ParseHCL(content, path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parse HCL %s: %s", path, diags.Error())
	}

	body, ok := file.Body.(*hclsyntax.Body)
	if !ok {
		return nil, fmt.Errorf("unexpected HCL body type in %s", path)
	}

	var discoveries []discovery.Discovery
	var lambdaEnvRefs []lambdaEnv

	for _, block := range body.Blocks {
		if block.Type != "resource" || len(block.Labels) < 2 {
			continue
		}
		resourceType := block.Labels[0]
		line := block.DefRange().Start.Line

		switch resourceType {
		case "aws_dynamodb_table":
			discoveries = append(discoveries, discovery.Discovery{
				Kind:       discovery.KindDatabaseAccess,
				SourceFile: path,
				SourceLine: line,
				DatabaseAccess: &discovery.DatabaseAccess{
					DBType:          "dynamodb",
					TableName:       attrString(block.Body, "name"),
					Operation:       discovery.OpUnknown,
					DetectionMethod: "terraform:aws_dynamodb_table",
				},
			})
		case "aws_sqs_queue":
			discoveries = append(discoveries, discovery.Discovery{
				Kind:       discovery.KindQueueOperation,
				SourceFile: path,
				SourceLine: line,
				QueueOperation: &discovery.QueueOperation{
					QueueType: "sqs",
					QueueName: attrString(block.Body, "name"),
					Operation: discovery.OpUnknown,
				},
			})
		case "aws_sns_topic":
			discoveries = append(discoveries, discovery.Discovery{
				Kind:       discovery.KindQueueOperation,
				SourceFile: path,
				SourceLine: line,
				QueueOperation: &discovery.QueueOperation{
					QueueType: "sns",
					QueueName: attrString(block.Body, "name"),
					Operation: discovery.OpUnknown,
				},
			})
		case "aws_s3_bucket", "aws_lambda_function", "aws_api_gateway_rest_api", "aws_apigatewayv2_api":
			name := attrString(block.Body, "bucket")
			if name == "" {
				name = attrString(block.Body, "function_name")
			}
			if name == "" {
				name = attrString(block.Body, "name")
			}
			discoveries = append(discoveries, discovery.Discovery{
				Kind:       discovery.KindCloudResourceUsage,
				SourceFile: path,
				SourceLine: line,
				CloudResourceUsage: &discovery.CloudResourceUsage{
					ResourceType: resourceType,
					ResourceName: name,
				},
			})
			if resourceType == "aws_lambda_function" {
				if env := lambdaEnvironment(block.Body); len(env) > 0 {
					lambdaEnvRefs = append(lambdaEnvRefs, lambdaEnv{name: name, vars: env, line: line})
				}
			}
		}
	}

	discoveries = append(discoveries, crossReferenceLambdaEnv(path, discoveries, lambdaEnvRefs)...)
	return discoveries, nil
}

type lambdaEnv struct {
	name string
	vars map[string]string
	line int
}

// lambdaEnvironment extracts the `environment { variables = { ... } }`
// nested block as a string map. Non-literal values are skipped; we
// only cross-reference when the value matches a known resource name
// textually.
func lambdaEnvironment(body *hclsyntax.Body) map[string]string {
	for _, nested := range body.Blocks {
		if nested.Type != "environment" {
			continue
		}
		attr, ok := nested.Body.Attributes["variables"]
		if !ok {
			continue
		}
		obj, diags := attr.Expr.Value(nil)
		if diags.HasErrors() || obj.IsNull() || !obj.CanIterateElements() {
			continue
		}
		out := make(map[string]string)
		it := obj.ElementIterator()
		for it.Next() {
			k, v := it.Element()
			if v.Type() == cty.String {
				out[k.AsString()] = v.AsString()
			}
		}
		return out
	}
	return nil
}

// crossReferenceLambdaEnv emits a CloudResourceUsage link when a
// lambda's environment variable value equals a queue or table name
// already discovered in the same file.
func crossReferenceLambdaEnv(path string, existing []discovery.Discovery, refs []lambdaEnv) []discovery.Discovery {
	known := make(map[string]bool)
	for _, d := range existing {
		switch d.Kind {
		case discovery.KindDatabaseAccess:
			if d.DatabaseAccess.TableName != "" {
				known[d.DatabaseAccess.TableName] = true
			}
		case discovery.KindQueueOperation:
			if d.QueueOperation.QueueName != "" {
				known[d.QueueOperation.QueueName] = true
			}
		}
	}

	var out []discovery.Discovery
	for _, ref := range refs {
		for _, v := range ref.vars {
			if known[v] {
				out = append(out, discovery.Discovery{
					Kind:       discovery.KindCloudResourceUsage,
					SourceFile: path,
					SourceLine: ref.line,
					CloudResourceUsage: &discovery.CloudResourceUsage{
						ResourceType: "aws_lambda_function:env_ref",
						ResourceName: v,
					},
				})
			}
		}
	}
	return out
}

func attrString(body *hclsyntax.Body, name string) string {
	attr, ok := body.Attributes[name]
	if !ok {
		return ""
	}
	val, diags := attr.Expr.Value(nil)
	if diags.HasErrors() || val.Type() != cty.String {
		return ""
	}
	return strings.TrimSpace(val.AsString())
}
