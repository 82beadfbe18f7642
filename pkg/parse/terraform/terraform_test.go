// Copyright 2026 Forge Authors
// SPDX-License-Identifier: AGPL-3.0-only

package terraform

import (
	"testing"

	"github.com/forgelabs/forge/pkg/discovery"
)

func TestParseFile_DynamoDBTable(t *testing.T) {
	p := New()
	content := []byte(`
resource "aws_dynamodb_table" "orders" {
  name     = "orders"
  hash_key = "id"
}
`)
	got, err := p.ParseFile("main.tf", content)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if len(got) != 1 || got[0].Kind != discovery.KindDatabaseAccess {
		t.Fatalf("got %+v", got)
	}
	if got[0].DatabaseAccess.TableName != "orders" {
		t.Errorf("table name = %q", got[0].DatabaseAccess.TableName)
	}
}

func TestParseFile_SQSAndSNS(t *testing.T) {
	p := New()
	content := []byte(`
resource "aws_sqs_queue" "orders_queue" {
  name = "orders-queue"
}

resource "aws_sns_topic" "orders_topic" {
  name = "orders-topic"
}
`)
	got, err := p.ParseFile("main.tf", content)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d discoveries, want 2", len(got))
	}
}

func TestParseFile_LambdaEnvCrossReference(t *testing.T) {
	p := New()
	content := []byte(`
resource "aws_sqs_queue" "orders_queue" {
  name = "orders-queue"
}

resource "aws_lambda_function" "worker" {
  function_name = "order-worker"

  environment {
    variables = {
      QUEUE_NAME = "orders-queue"
    }
  }
}
`)
	got, err := p.ParseFile("main.tf", content)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}

	var sawCrossRef bool
	for _, d := range got {
		if d.Kind == discovery.KindCloudResourceUsage && d.CloudResourceUsage.ResourceType == "aws_lambda_function:env_ref" {
			sawCrossRef = true
			if d.CloudResourceUsage.ResourceName != "orders-queue" {
				t.Errorf("cross-ref resource name = %q", d.CloudResourceUsage.ResourceName)
			}
		}
	}
	if !sawCrossRef {
		t.Fatalf("expected a lambda env cross-reference, got %+v", got)
	}
}
