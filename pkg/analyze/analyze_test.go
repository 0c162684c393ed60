package analyze

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

const pythonSample = `
import os
from auth import tokens

def login(user, password):
    return tokens.issue(user)

class SessionStore:
    def get(self, key):
        pass

    def put(self, key, value):
        pass
`

const goSample = `package auth

import "errors"

type SessionStore struct{}

func (s *SessionStore) Get(key string) (string, error) {
	return "", errors.New("not found")
}

func Login(user, password string) error {
	return nil
}
`

const jsSample = `
import { issue } from './tokens';

export function login(user, password) {
  return issue(user);
}

export const logout = (session) => {};

export class SessionStore {
  get(key) {}
}
`

func contains(items []string, want string) bool {
	for _, item := range items {
		if item == want {
			return true
		}
	}
	return false
}

func TestPythonAnalyzer(t *testing.T) {
	analysis, err := newPythonAnalyzer().Analyze(context.Background(), []byte(pythonSample))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if !contains(analysis.Functions, "login") {
		t.Errorf("Expected login in functions, got %v", analysis.Functions)
	}
	if !contains(analysis.Classes, "SessionStore") {
		t.Errorf("Expected SessionStore in classes, got %v", analysis.Classes)
	}
	if !contains(analysis.Functions, "get") || !contains(analysis.Functions, "put") {
		t.Errorf("Expected methods in functions, got %v", analysis.Functions)
	}
	if !contains(analysis.Imports, "os") || !contains(analysis.Imports, "auth") {
		t.Errorf("Expected imports os and auth, got %v", analysis.Imports)
	}

	var foundMethod bool
	for _, sym := range analysis.Symbols {
		if sym.Name == "get" && sym.Parent == "SessionStore" && sym.Kind == "method" {
			foundMethod = true
		}
	}
	if !foundMethod {
		t.Errorf("Expected SessionStore.get method symbol, got %v", analysis.Symbols)
	}
}

func TestGoAnalyzer(t *testing.T) {
	analysis, err := newGoAnalyzer().Analyze(context.Background(), []byte(goSample))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if !contains(analysis.Functions, "Login") || !contains(analysis.Functions, "Get") {
		t.Errorf("Expected Login and Get in functions, got %v", analysis.Functions)
	}
	if !contains(analysis.Classes, "SessionStore") {
		t.Errorf("Expected SessionStore in classes, got %v", analysis.Classes)
	}
	if !contains(analysis.Imports, "errors") {
		t.Errorf("Expected errors import, got %v", analysis.Imports)
	}

	var receiver string
	for _, sym := range analysis.Symbols {
		if sym.Name == "Get" {
			receiver = sym.Parent
		}
	}
	if receiver != "SessionStore" {
		t.Errorf("Expected Get method receiver SessionStore, got %q", receiver)
	}
}

func TestJavaScriptAnalyzer(t *testing.T) {
	analysis, err := newJavaScriptAnalyzer().Analyze(context.Background(), []byte(jsSample))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if !contains(analysis.Functions, "login") || !contains(analysis.Functions, "logout") {
		t.Errorf("Expected login and logout in functions, got %v", analysis.Functions)
	}
	if !contains(analysis.Classes, "SessionStore") {
		t.Errorf("Expected SessionStore in classes, got %v", analysis.Classes)
	}
	if !contains(analysis.Exports, "login") || !contains(analysis.Exports, "SessionStore") {
		t.Errorf("Expected exports, got %v", analysis.Exports)
	}
	if !contains(analysis.Imports, "./tokens") {
		t.Errorf("Expected ./tokens import, got %v", analysis.Imports)
	}
}

func TestAnalyzeFile_UnsupportedExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "README.md")
	if err := os.WriteFile(path, []byte("# readme"), 0644); err != nil {
		t.Fatal(err)
	}

	analysis, err := AnalyzeFile(context.Background(), path)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if analysis != nil {
		t.Errorf("Expected nil analysis for unsupported extension, got %+v", analysis)
	}
}

func TestAnalyzeFile_Python(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "auth.py")
	if err := os.WriteFile(path, []byte(pythonSample), 0644); err != nil {
		t.Fatal(err)
	}

	analysis, err := AnalyzeFile(context.Background(), path)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if analysis == nil || analysis.Language != "python" {
		t.Fatalf("Expected python analysis, got %+v", analysis)
	}
}

func TestAnalyzeFile_Concurrent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "auth.py")
	if err := os.WriteFile(path, []byte(pythonSample), 0644); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			analysis, err := AnalyzeFile(context.Background(), path)
			if err != nil {
				errs <- err
				return
			}
			if analysis == nil || len(analysis.Functions) == 0 {
				errs <- fmt.Errorf("incomplete analysis: %+v", analysis)
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("Concurrent analysis failed: %v", err)
	}
}

func TestScoreAgainstSpec(t *testing.T) {
	analysis := &Analysis{
		Functions: []string{"login", "logout"},
		Classes:   []string{"SessionStore"},
	}

	tests := []struct {
		name  string
		attrs map[string]any
		want  float64
	}{
		{"all found", map[string]any{"functions": []any{"login", "logout"}}, 1.0},
		{"case insensitive", map[string]any{"class": "sessionstore"}, 1.0},
		{"half found", map[string]any{"functions": []any{"login", "register"}}, 0.5},
		{"substring match", map[string]any{"commands": []any{"log"}}, 1.0},
		{"nothing declared", map[string]any{"description": "auth feature"}, 0.0},
		{"nil attributes", nil, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ScoreAgainstSpec(analysis, tt.attrs)
			if got != tt.want {
				t.Errorf("Expected score %v, got %v", tt.want, got)
			}
		})
	}
}
