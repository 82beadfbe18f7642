// Copyright 2026 Forge Authors
// SPDX-License-Identifier: AGPL-3.0-only

package detect

import (
	"testing"
	"testing/fstest"
)

func TestRepo_ConfigFileHighConfidence(t *testing.T) {
	fsys := fstest.MapFS{
		"package.json": &fstest.MapFile{Data: []byte(`{"name":"svc"}`)},
		"src/index.js": &fstest.MapFile{Data: []byte(`console.log(1)`)},
	}

	got, err := Repo(".", fsys, nil)
	if err != nil {
		t.Fatalf("Repo: %v", err)
	}
	if len(got) != 1 || got[0].Name != JavaScript || got[0].Method != ConfigFile {
		t.Fatalf("got %+v", got)
	}
	if got[0].Confidence < 0.9 {
		t.Errorf("confidence = %v, want >= 0.9", got[0].Confidence)
	}
}

func TestRepo_ExtensionOnlyRequiresMinimumFiles(t *testing.T) {
	fsys := fstest.MapFS{
		"a.py": &fstest.MapFile{Data: []byte("x = 1")},
		"b.py": &fstest.MapFile{Data: []byte("x = 1")},
	}

	got, err := Repo(".", fsys, nil)
	if err != nil {
		t.Fatalf("Repo: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no languages below minimum file count, got %+v", got)
	}
}

func TestRepo_ExtensionConfidenceScalesWithCount(t *testing.T) {
	fsys := fstest.MapFS{}
	for i := 0; i < 10; i++ {
		fsys[string(rune('a'+i))+".py"] = &fstest.MapFile{Data: []byte("x = 1")}
	}

	got, err := Repo(".", fsys, nil)
	if err != nil {
		t.Fatalf("Repo: %v", err)
	}
	if len(got) != 1 || got[0].Name != Python || got[0].Method != FileExtension {
		t.Fatalf("got %+v", got)
	}
	if got[0].Confidence <= 0.6 || got[0].Confidence > 0.9 {
		t.Errorf("confidence = %v, want in (0.6, 0.9]", got[0].Confidence)
	}
}

func TestRepo_Exclude(t *testing.T) {
	fsys := fstest.MapFS{
		"package.json": &fstest.MapFile{Data: []byte(`{}`)},
	}

	got, err := Repo(".", fsys, Exclude{JavaScript: true})
	if err != nil {
		t.Fatalf("Repo: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected exclusion to drop javascript, got %+v", got)
	}
}

func TestRepo_SkipsVendoredDirs(t *testing.T) {
	fsys := fstest.MapFS{
		"node_modules/dep/index.js": &fstest.MapFile{Data: []byte("x")},
		"node_modules/dep/b.js":     &fstest.MapFile{Data: []byte("x")},
		"node_modules/dep/c.js":     &fstest.MapFile{Data: []byte("x")},
	}

	got, err := Repo(".", fsys, nil)
	if err != nil {
		t.Fatalf("Repo: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected vendored files to be skipped, got %+v", got)
	}
}

func TestRepo_CloudFormationTemplate(t *testing.T) {
	fsys := fstest.MapFS{
		"template.yaml": &fstest.MapFile{Data: []byte("AWSTemplateFormatVersion: '2010-09-09'\nResources: {}\n")},
	}

	got, err := Repo(".", fsys, nil)
	if err != nil {
		t.Fatalf("Repo: %v", err)
	}
	if len(got) != 1 || got[0].Name != CloudFormation {
		t.Fatalf("got %+v", got)
	}
}
