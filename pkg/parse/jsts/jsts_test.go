// Copyright 2026 Forge Authors
// SPDX-License-Identifier: AGPL-3.0-only

package jsts

import (
	"testing"

	"github.com/forgelabs/forge/pkg/discovery"
)

func TestParseFile_PackageJSON(t *testing.T) {
	p := New()
	content := []byte(`{
		"name": "checkout-api",
		"main": "src/index.js",
		"dependencies": {"express": "^4.0.0"}
	}`)

	got, err := p.ParseFile("package.json", content)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if len(got) != 1 || got[0].Kind != discovery.KindService {
		t.Fatalf("got %+v", got)
	}
	svc := got[0].Service
	if svc.Name != "checkout-api" || svc.Framework != "express" || svc.EntryPoint != "src/index.js" {
		t.Errorf("got %+v", svc)
	}
}

func TestParseFile_Imports(t *testing.T) {
	p := New()
	content := []byte(`import express from 'express';
const aws = require('aws-sdk');
`)
	got, err := p.ParseFile("src/index.js", content)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}

	var modules []string
	for _, d := range got {
		if d.Kind == discovery.KindImport {
			modules = append(modules, d.Import.Module)
		}
	}
	if len(modules) != 2 {
		t.Fatalf("got modules %v, want 2", modules)
	}
}

func TestParseFile_DynamoDBAccess(t *testing.T) {
	p := New()
	content := []byte(`
async function handler() {
  const result = await docClient.get({ TableName: "orders", Key: { id } }).promise();
}
`)
	got, err := p.ParseFile("src/handler.js", content)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}

	var found bool
	for _, d := range got {
		if d.Kind == discovery.KindDatabaseAccess && d.DatabaseAccess.TableName == "orders" {
			found = true
			if d.DatabaseAccess.Operation != discovery.OpRead {
				t.Errorf("operation = %v, want read", d.DatabaseAccess.Operation)
			}
		}
	}
	if !found {
		t.Fatalf("expected a dynamodb get on orders, got %+v", got)
	}
}

func TestParseFile_FetchAPICall(t *testing.T) {
	p := New()
	content := []byte(`fetch("https://api.example.com/users")`)
	got, err := p.ParseFile("src/client.js", content)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if len(got) != 1 || got[0].Kind != discovery.KindAPICall {
		t.Fatalf("got %+v", got)
	}
	if got[0].APICall.Target != "https://api.example.com/users" {
		t.Errorf("target = %q", got[0].APICall.Target)
	}
}

func TestParseFile_SQSSend(t *testing.T) {
	p := New()
	content := []byte(`sqsClient.send(new SendMessageCommand({ QueueUrl: "https://sqs/orders" }))`)
	got, err := p.ParseFile("src/producer.js", content)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}

	var found bool
	for _, d := range got {
		if d.Kind == discovery.KindQueueOperation {
			found = true
			if d.QueueOperation.QueueName != "https://sqs/orders" {
				t.Errorf("queue name = %q", d.QueueOperation.QueueName)
			}
		}
	}
	if !found {
		t.Fatalf("expected a queue operation, got %+v", got)
	}
}

func TestParseFile_SyntaxErrorTolerant(t *testing.T) {
	p := New()
	_, err := p.ParseFile("src/broken.js", []byte(`function broken( {`))
	if err != nil {
		t.Fatalf("ParseFile should tolerate broken syntax, got err: %v", err)
	}
}
