// Copyright 2026 The Flowline Authors
// SPDX-License-Identifier: Apache-2.0

package forge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// newTestClient points a Client at a TLS test server, trusting its
// certificate.
func newTestClient(t *testing.T, server *httptest.Server) *Client {
	t.Helper()
	client, err := NewClient(Config{
		BaseURL:    server.URL,
		Token:      "test-token",
		HTTPClient: server.Client(),
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func TestCreateComment(t *testing.T) {
	t.Parallel()

	var receivedPath, receivedMethod, receivedAuth string
	var receivedBody map[string]string

	server := httptest.NewTLSServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		receivedPath = request.URL.Path
		receivedMethod = request.Method
		receivedAuth = request.Header.Get("Authorization")
		json.NewDecoder(request.Body).Decode(&receivedBody)

		writer.WriteHeader(http.StatusCreated)
		json.NewEncoder(writer).Encode(Comment{ID: 77, Body: receivedBody["body"]})
	}))
	defer server.Close()

	client := newTestClient(t, server)
	comment, err := client.CreateComment(context.Background(), "acme/api", 41, "coverage report")
	if err != nil {
		t.Fatalf("CreateComment: %v", err)
	}

	if receivedMethod != "POST" || receivedPath != "/repos/acme/api/issues/41/comments" {
		t.Errorf("request = %s %s", receivedMethod, receivedPath)
	}
	if receivedAuth != "Bearer test-token" {
		t.Errorf("authorization = %q", receivedAuth)
	}
	if comment.ID != 77 {
		t.Errorf("comment ID = %d", comment.ID)
	}
}

func TestUpsertCommentUpdatesExisting(t *testing.T) {
	t.Parallel()

	const marker = "<!-- flowline-coverage -->"
	var patchedPath string

	server := httptest.NewTLSServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		switch {
		case request.Method == "GET":
			json.NewEncoder(writer).Encode([]Comment{
				{ID: 1, Body: "unrelated"},
				{ID: 2, Body: marker + "\nold coverage"},
			})
		case request.Method == "PATCH":
			patchedPath = request.URL.Path
			json.NewEncoder(writer).Encode(Comment{ID: 2})
		default:
			t.Errorf("unexpected %s %s", request.Method, request.URL.Path)
			writer.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer server.Close()

	client := newTestClient(t, server)
	err := client.UpsertComment(context.Background(), "acme/api", 41, marker, marker+"\nnew coverage")
	if err != nil {
		t.Fatalf("UpsertComment: %v", err)
	}
	if patchedPath != "/repos/acme/api/issues/comments/2" {
		t.Errorf("patched %q", patchedPath)
	}
}

func TestUpsertCommentCreatesWhenMissing(t *testing.T) {
	t.Parallel()

	const marker = "<!-- flowline-coverage -->"
	var created bool

	server := httptest.NewTLSServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		switch request.Method {
		case "GET":
			json.NewEncoder(writer).Encode([]Comment{{ID: 1, Body: "unrelated"}})
		case "POST":
			created = true
			writer.WriteHeader(http.StatusCreated)
			json.NewEncoder(writer).Encode(Comment{ID: 3})
		}
	}))
	defer server.Close()

	client := newTestClient(t, server)
	err := client.UpsertComment(context.Background(), "acme/api", 41, marker, marker+"\ncoverage")
	if err != nil {
		t.Fatalf("UpsertComment: %v", err)
	}
	if !created {
		t.Error("no comment was created")
	}
}

func TestUpsertCommentRequiresMarkerInBody(t *testing.T) {
	t.Parallel()

	client, err := NewClient(Config{Token: "t"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if err := client.UpsertComment(context.Background(), "acme/api", 1, "<!-- m -->", "no marker"); err == nil {
		t.Error("UpsertComment accepted a body without the marker")
	}
}

func TestCreateCommitStatus(t *testing.T) {
	t.Parallel()

	var receivedPath string
	var receivedStatus CommitStatus

	server := httptest.NewTLSServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		receivedPath = request.URL.Path
		json.NewDecoder(request.Body).Decode(&receivedStatus)
		writer.WriteHeader(http.StatusCreated)
		fmt.Fprint(writer, "{}")
	}))
	defer server.Close()

	client := newTestClient(t, server)
	err := client.CreateCommitStatus(context.Background(), "acme/api", "abc123", CommitStatus{
		State:       StatusSuccess,
		Context:     "flowline/ci",
		Description: "all jobs passed",
	})
	if err != nil {
		t.Fatalf("CreateCommitStatus: %v", err)
	}
	if receivedPath != "/repos/acme/api/statuses/abc123" {
		t.Errorf("path = %q", receivedPath)
	}
	if receivedStatus.State != StatusSuccess || receivedStatus.Context != "flowline/ci" {
		t.Errorf("status = %+v", receivedStatus)
	}
}

func TestAPIErrorParsing(t *testing.T) {
	t.Parallel()

	server := httptest.NewTLSServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.WriteHeader(http.StatusNotFound)
		fmt.Fprint(writer, `{"message": "Not Found"}`)
	}))
	defer server.Close()

	client := newTestClient(t, server)
	_, err := client.CreateComment(context.Background(), "acme/missing", 1, "body")
	if !IsNotFound(err) {
		t.Errorf("err = %v, want 404 APIError", err)
	}
	if !strings.Contains(err.Error(), "Not Found") {
		t.Errorf("error message lost: %v", err)
	}
}

func TestNewClientValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewClient(Config{}); err == nil {
		t.Error("NewClient accepted a missing token")
	}
	if _, err := NewClient(Config{Token: "t", BaseURL: "http://insecure"}); err == nil {
		t.Error("NewClient accepted a non-HTTPS base URL")
	}
}
