/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDetectAndRebuildIndex_OnCorruption(t *testing.T) {
	root := t.TempDir()
	writeScript(t, root, "greeting.oys", greeting)
	ctx := testCtx(t)
	if _, err := BuildIndex(ctx, root); err != nil {
		t.Fatalf("BuildIndex: %v", err)
	}
	rebuilt, err := DetectAndRebuildIndex(ctx, root)
	if err != nil || rebuilt {
		t.Fatalf("healthy index: rebuilt=%v err=%v", rebuilt, err)
	}

	idx := IndexPath(root)
	removeIndexFiles(idx)
	if err := os.WriteFile(idx, []byte("THIS IS NOT SQLITE"), 0o644); err != nil {
		t.Fatalf("write corrupt: %v", err)
	}
	rebuilt, err = DetectAndRebuildIndex(ctx, root)
	if err != nil {
		t.Fatalf("DetectAndRebuildIndex: %v", err)
	}
	if !rebuilt {
		t.Fatalf("expected rebuild to occur")
	}
	res, err := Search(ctx, root, SearchQuery{Text: "goodbye"})
	if err != nil || len(res) != 1 {
		t.Fatalf("search after rebuild: %v %+v", err, res)
	}
	bdir := filepath.Join(root, IndexDirName, "backups")
	entries, _ := os.ReadDir(bdir)
	if len(entries) == 0 {
		t.Fatalf("expected backup file in %s", bdir)
	}
}

func TestRebuildIndexKeepsTranscripts(t *testing.T) {
	root := t.TempDir()
	writeScript(t, root, "greeting.oys", greeting)
	ctx := testCtx(t)
	if _, err := SaveTranscript(ctx, root, RunRecord{Path: "greeting.oys", Reason: "end", Steps: 3, Lines: []string{"hi"}}); err != nil {
		t.Fatalf("SaveTranscript: %v", err)
	}
	stats, err := RebuildIndex(ctx, root)
	if err != nil {
		t.Fatalf("RebuildIndex: %v", err)
	}
	if stats.Indexed != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	runs, err := ListTranscripts(ctx, root, "greeting.oys", 0)
	if err != nil || len(runs) != 1 {
		t.Fatalf("transcripts after rebuild: %v %+v", err, runs)
	}
}
