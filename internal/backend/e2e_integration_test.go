/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package backend

import (
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"oyster/internal/storage"
)

func TestE2E_PublishAndSearchOverHTTP(t *testing.T) {
	db := openPGForTest(t)
	root := seedSQLiteWorkspace(t)
	ctx := testCtx(t)

	ts := httptest.NewServer(NewServer(Config{Secret: "e2e"}, db).Handler())
	defer ts.Close()
	c := NewClient(ts.URL, "", 5*time.Second)

	tok, err := c.Token(ctx, "e2e", time.Minute)
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	c.BearerToken = tok.Token

	docs, err := storage.Documents(ctx, root)
	if err != nil {
		t.Fatalf("Documents: %v", err)
	}
	ws := fmt.Sprintf("e2e-%d", time.Now().UnixNano())
	n, err := c.Publish(ctx, ws, docs)
	if err != nil || n != len(docs) {
		t.Fatalf("Publish: n=%d err=%v", n, err)
	}

	res, err := c.Search(ctx, ws, storage.SearchQuery{Text: "goodbye"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res) != 1 || res[0].Speaker != "Bob" || !strings.Contains(res[0].Snippet, "[Goodbye]") {
		t.Fatalf("search result = %+v", res)
	}

	// Publishing again replaces the workspace.
	if _, err := c.Publish(ctx, ws, docs[:1]); err != nil {
		t.Fatalf("republish: %v", err)
	}
	res, err = c.Search(ctx, ws, storage.SearchQuery{Text: "goodbye"})
	if err != nil || len(res) != 0 {
		t.Fatalf("stale documents after republish: %+v %v", res, err)
	}

	resp, err := ts.Client().Get(ts.URL + "/readyz")
	if err != nil || resp.StatusCode != 200 {
		t.Fatalf("readyz with db: %v %v", resp, err)
	}
	_ = resp.Body.Close()
}
