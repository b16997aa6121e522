package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/listveil/listveil/pkg/list"
	"github.com/listveil/listveil/pkg/menu"
	"github.com/listveil/listveil/pkg/rules"
	"github.com/listveil/listveil/pkg/storage"
)

func newTestServer(t *testing.T, texts ...string) (*httptest.Server, *Server, *list.List) {
	t.Helper()

	store, err := rules.Open(storage.NewMemory(), rules.DefaultKey, rules.PolicyExclude, nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	container := list.New()
	container.Append(texts...)

	server := NewServer("", nil)
	controller := menu.NewController(store, container, server, nil)
	server.Bind(store, container, controller)
	controller.Rebuild()

	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	return ts, server, container
}

func doRequest(t *testing.T, method, url string, body any) (int, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Marshal() error = %v", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	return resp.StatusCode, data
}

func TestHealth(t *testing.T) {
	ts, _, _ := newTestServer(t)

	status, body := doRequest(t, http.MethodGet, ts.URL+"/health", nil)

	if status != http.StatusOK {
		t.Errorf("status = %d, want %d", status, http.StatusOK)
	}
	var resp map[string]string
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf(`status field = %q, want "ok"`, resp["status"])
	}
}

func TestAddPattern(t *testing.T) {
	ts, _, container := newTestServer(t, "Internship Program", "Senior Engineer")

	status, body := doRequest(t, http.MethodPost, ts.URL+"/patterns",
		map[string]string{"pattern": "intern"})

	if status != http.StatusCreated {
		t.Fatalf("status = %d, want %d: %s", status, http.StatusCreated, body)
	}
	var patterns []string
	if err := json.Unmarshal(body, &patterns); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if len(patterns) != 1 || patterns[0] != "intern" {
		t.Errorf("patterns = %v, want [intern]", patterns)
	}
	if !container.Items()[0].Hidden() {
		t.Error("matching item not hidden after add")
	}
	if container.Items()[1].Hidden() {
		t.Error("non-matching item hidden after add")
	}
}

func TestAddPatternInvalid(t *testing.T) {
	ts, _, _ := newTestServer(t)

	status, body := doRequest(t, http.MethodPost, ts.URL+"/patterns",
		map[string]string{"pattern": "[unterminated"})

	if status != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", status, http.StatusBadRequest)
	}
	var resp map[string]string
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if resp["error"] == "" {
		t.Error("error body missing message")
	}
}

func TestAddPatternBadBody(t *testing.T) {
	ts, _, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/patterns",
		bytes.NewReader([]byte("{not json")))
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
}

func TestRemovePattern(t *testing.T) {
	ts, _, container := newTestServer(t, "crypto spam")

	doRequest(t, http.MethodPost, ts.URL+"/patterns", map[string]string{"pattern": "crypto"})
	if !container.Items()[0].Hidden() {
		t.Fatal("item not hidden before removal")
	}

	status, _ := doRequest(t, http.MethodDelete, ts.URL+"/patterns",
		map[string]string{"pattern": "crypto"})

	if status != http.StatusOK {
		t.Fatalf("status = %d, want %d", status, http.StatusOK)
	}
	if container.Items()[0].Hidden() {
		t.Error("item still hidden after the last pattern was removed")
	}
}

func TestClearRequiresConfirmation(t *testing.T) {
	ts, _, container := newTestServer(t, "noise here")
	doRequest(t, http.MethodPost, ts.URL+"/patterns", map[string]string{"pattern": "noise"})

	status, body := doRequest(t, http.MethodPost, ts.URL+"/patterns/clear",
		map[string]bool{"confirm": false})
	if status != http.StatusBadRequest {
		t.Fatalf("unconfirmed clear status = %d, want %d: %s", status, http.StatusBadRequest, body)
	}
	if !container.Items()[0].Hidden() {
		t.Error("unconfirmed clear removed patterns anyway")
	}

	status, _ = doRequest(t, http.MethodPost, ts.URL+"/patterns/clear",
		map[string]bool{"confirm": true})
	if status != http.StatusOK {
		t.Fatalf("confirmed clear status = %d, want %d", status, http.StatusOK)
	}
	if container.Items()[0].Hidden() {
		t.Error("item still hidden after confirmed clear")
	}

	status, body = doRequest(t, http.MethodGet, ts.URL+"/patterns", nil)
	if status != http.StatusOK {
		t.Fatalf("list status = %d", status)
	}
	var patterns []string
	if err := json.Unmarshal(body, &patterns); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if len(patterns) != 0 {
		t.Errorf("patterns = %v, want empty", patterns)
	}
}

func TestListItems(t *testing.T) {
	ts, _, _ := newTestServer(t, "Internship role", "Staff role")
	doRequest(t, http.MethodPost, ts.URL+"/patterns", map[string]string{"pattern": "intern"})

	status, body := doRequest(t, http.MethodGet, ts.URL+"/items", nil)

	if status != http.StatusOK {
		t.Fatalf("status = %d, want %d", status, http.StatusOK)
	}
	var items []struct {
		Text   string `json:"text"`
		Hidden bool   `json:"hidden"`
	}
	if err := json.Unmarshal(body, &items); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}
	if !items[0].Hidden || items[0].Text != "Internship role" {
		t.Errorf("items[0] = %+v, want hidden internship", items[0])
	}
	if items[1].Hidden {
		t.Errorf("items[1] = %+v, want visible", items[1])
	}
}

func TestListCommands(t *testing.T) {
	ts, _, _ := newTestServer(t)
	doRequest(t, http.MethodPost, ts.URL+"/patterns", map[string]string{"pattern": "spam"})

	status, body := doRequest(t, http.MethodGet, ts.URL+"/commands", nil)

	if status != http.StatusOK {
		t.Fatalf("status = %d, want %d", status, http.StatusOK)
	}
	var cmds []struct {
		Key     string `json:"key"`
		Title   string `json:"title"`
		Prompt  string `json:"prompt"`
		Confirm string `json:"confirm"`
	}
	if err := json.Unmarshal(body, &cmds); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	want := []string{menu.KeyAddPattern, menu.KeyClearAll, menu.RemoveKey("spam")}
	if len(cmds) != len(want) {
		t.Fatalf("got %d commands, want %d: %+v", len(cmds), len(want), cmds)
	}
	for i, key := range want {
		if cmds[i].Key != key {
			t.Errorf("cmds[%d].Key = %q, want %q", i, cmds[i].Key, key)
		}
	}
	if cmds[0].Prompt == "" {
		t.Error("add command exposes no prompt")
	}
	if cmds[1].Confirm == "" {
		t.Error("clear command exposes no confirmation text")
	}
}

func TestRunCommand(t *testing.T) {
	ts, _, container := newTestServer(t, "spam offer")

	status, _ := doRequest(t, http.MethodPost, ts.URL+"/commands/"+menu.KeyAddPattern,
		map[string]string{"input": "spam"})

	if status != http.StatusOK {
		t.Fatalf("status = %d, want %d", status, http.StatusOK)
	}
	if !container.Items()[0].Hidden() {
		t.Error("item not hidden after running add command")
	}
}

func TestRunCommandUnknown(t *testing.T) {
	ts, _, _ := newTestServer(t)

	status, _ := doRequest(t, http.MethodPost, ts.URL+"/commands/no-such-command", nil)

	if status != http.StatusNotFound {
		t.Errorf("status = %d, want %d", status, http.StatusNotFound)
	}
}

func TestRemoveCommandGoesStaleNever(t *testing.T) {
	ts, _, _ := newTestServer(t)
	doRequest(t, http.MethodPost, ts.URL+"/patterns", map[string]string{"pattern": "spam"})

	removeURL := ts.URL + "/commands/" + menu.RemoveKey("spam")
	status, _ := doRequest(t, http.MethodPost, removeURL, nil)
	if status != http.StatusOK {
		t.Fatalf("first run status = %d, want %d", status, http.StatusOK)
	}

	// The pattern is gone, so its command must be unregistered
	status, _ = doRequest(t, http.MethodPost, removeURL, nil)
	if status != http.StatusNotFound {
		t.Errorf("second run status = %d, want %d", status, http.StatusNotFound)
	}
}

func TestCommandKeyWithSlash(t *testing.T) {
	ts, _, container := newTestServer(t, "a/b testcase")
	doRequest(t, http.MethodPost, ts.URL+"/patterns", map[string]string{"pattern": "a/b"})

	if !container.Items()[0].Hidden() {
		t.Fatal("item not hidden by slashed pattern")
	}

	status, _ := doRequest(t, http.MethodPost,
		ts.URL+"/commands/"+menu.RemoveKey("a/b"), nil)

	if status != http.StatusOK {
		t.Fatalf("status = %d, want %d", status, http.StatusOK)
	}
	if container.Items()[0].Hidden() {
		t.Error("item still hidden after slashed pattern removal")
	}
}

func TestRunConfirmGuardedCommand(t *testing.T) {
	ts, _, container := newTestServer(t, "spam here")
	doRequest(t, http.MethodPost, ts.URL+"/patterns", map[string]string{"pattern": "spam"})

	clearURL := ts.URL + "/commands/" + menu.KeyClearAll
	status, _ := doRequest(t, http.MethodPost, clearURL, map[string]any{})
	if status != http.StatusBadRequest {
		t.Fatalf("unconfirmed status = %d, want %d", status, http.StatusBadRequest)
	}
	if !container.Items()[0].Hidden() {
		t.Error("unconfirmed clear command ran anyway")
	}

	status, _ = doRequest(t, http.MethodPost, clearURL, map[string]any{"confirm": true})
	if status != http.StatusOK {
		t.Fatalf("confirmed status = %d, want %d", status, http.StatusOK)
	}
	if container.Items()[0].Hidden() {
		t.Error("item still hidden after confirmed clear command")
	}
}

func TestRoutesBeforeBind(t *testing.T) {
	server := NewServer("", nil)
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	status, _ := doRequest(t, http.MethodPost, ts.URL+"/patterns",
		map[string]string{"pattern": "x"})
	if status != http.StatusServiceUnavailable {
		t.Errorf("add status = %d, want %d", status, http.StatusServiceUnavailable)
	}

	status, _ = doRequest(t, http.MethodGet, ts.URL+"/patterns", nil)
	if status != http.StatusServiceUnavailable {
		t.Errorf("list status = %d, want %d", status, http.StatusServiceUnavailable)
	}

	status, _ = doRequest(t, http.MethodGet, ts.URL+"/items", nil)
	if status != http.StatusServiceUnavailable {
		t.Errorf("items status = %d, want %d", status, http.StatusServiceUnavailable)
	}

	// Health stays up regardless of pipeline state
	status, _ = doRequest(t, http.MethodGet, ts.URL+"/health", nil)
	if status != http.StatusOK {
		t.Errorf("health status = %d, want %d", status, http.StatusOK)
	}
}

func TestStartAndShutdown(t *testing.T) {
	server := NewServer("127.0.0.1:0", nil)

	if err := server.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	resp, err := http.Get(fmt.Sprintf("http://%s/health", server.Addr()))
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}
