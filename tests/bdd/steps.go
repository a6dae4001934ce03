//go:build bdd

package bdd

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/cucumber/godog"

	"github.com/contexlabs/contex/internal/canonical"
	"github.com/contexlabs/contex/internal/diagnostics"
	"github.com/contexlabs/contex/internal/ir"
	"github.com/contexlabs/contex/internal/tens"
	"github.com/contexlabs/contex/internal/tenstext"
	"github.com/contexlabs/contex/internal/tokenizer"
	"github.com/contexlabs/contex/internal/tokenmemory"
)

// ctx carries scenario-local state between step definitions. A fresh ctx
// is created per scenario by the sc.Before hook registered in bdd_test.go.
type ctx struct {
	adapter *tokenizer.Adapter

	records       []map[string]interface{}
	reorderedRows []map[string]interface{}

	canonA, canonB []canonical.Value
	irA, irB       *ir.IR

	textDoc     string
	binaryBytes []byte
	decoded     []canonical.Value

	store        *tokenmemory.TokenMemory
	storeRoot    string
	sink         *capturingSink
	irHash       string
	lastReason   diagnostics.MissReason
	lastErr      error
}

type capturingSink struct {
	accesses []diagnostics.AccessResult
}

func (s *capturingSink) Record(r diagnostics.AccessResult) { s.accesses = append(s.accesses, r) }

func newCtx() (*ctx, error) {
	a, err := tokenizer.New(tokenizer.EncodingO200kBase, 0)
	if err != nil {
		return nil, err
	}
	return &ctx{adapter: a}, nil
}

func (c *ctx) close() {
	if c.adapter != nil {
		c.adapter.Dispose()
	}
}

func parseRecords(doc *godog.DocString) ([]map[string]interface{}, error) {
	var rows []map[string]interface{}
	if err := json.Unmarshal([]byte(doc.Content), &rows); err != nil {
		return nil, fmt.Errorf("parse records JSON: %w", err)
	}
	return rows, nil
}

func (c *ctx) theRecords(doc *godog.DocString) error {
	rows, err := parseRecords(doc)
	if err != nil {
		return err
	}
	c.records = rows
	return nil
}

func (c *ctx) theSameRecordsWithKeysReversed() error {
	reversed := make([]map[string]interface{}, len(c.records))
	for i, row := range c.records {
		keys := make([]string, 0, len(row))
		for k := range row {
			keys = append(keys, k)
		}
		out := make(map[string]interface{}, len(row))
		for j := len(keys) - 1; j >= 0; j-- {
			out[keys[j]] = row[keys[j]]
		}
		reversed[i] = out
	}
	c.reorderedRows = reversed
	return nil
}

func (c *ctx) iCanonicalizeBothRecordSets() error {
	var err error
	c.canonA, err = canonical.Canonicalize(c.records)
	if err != nil {
		return err
	}
	c.canonB, err = canonical.Canonicalize(c.reorderedRows)
	return err
}

func (c *ctx) bothCanonicalizationsAreEqual() error {
	if len(c.canonA) != len(c.canonB) {
		return fmt.Errorf("record count mismatch: %d vs %d", len(c.canonA), len(c.canonB))
	}
	for i := range c.canonA {
		if !canonical.Equal(c.canonA[i], c.canonB[i]) {
			return fmt.Errorf("row %d differs after canonicalization", i)
		}
	}
	return nil
}

func (c *ctx) iCanonicalizeTheRecordsTwice() error {
	var err error
	c.canonA, err = canonical.Canonicalize(c.records)
	if err != nil {
		return err
	}
	c.canonB, err = canonical.Canonicalize(c.records)
	return err
}

func (c *ctx) iBuildTheCanonicalIRForBothRecordSets() error {
	var err error
	c.irA, err = ir.Encode(c.adapter, c.records, 0)
	if err != nil {
		return err
	}
	c.irB, err = ir.Encode(c.adapter, c.reorderedRows, 0)
	return err
}

func (c *ctx) bothIRHashesAreEqual() error {
	if c.irA.Hash != c.irB.Hash {
		return fmt.Errorf("hash mismatch: %s vs %s", c.irA.Hash, c.irB.Hash)
	}
	return nil
}

func (c *ctx) iEncodeTheRecordsAsTENSText() error {
	canon, err := canonical.Canonicalize(c.records)
	if err != nil {
		return err
	}
	c.canonA = canon
	doc, err := tenstext.Encode(c.adapter, canon, 0)
	if err != nil {
		return err
	}
	c.textDoc = doc
	return nil
}

func (c *ctx) theTextDocumentContainsTheLineFragment(fragment string) error {
	if !strings.Contains(c.textDoc, fragment) {
		return fmt.Errorf("expected text document to contain %q, got:\n%s", fragment, c.textDoc)
	}
	return nil
}

func (c *ctx) iDecodeTheTextDocument() error {
	decoded, _, err := tenstext.Decode(c.textDoc)
	if err != nil {
		return err
	}
	c.decoded = decoded
	return nil
}

func (c *ctx) theDecodedRecordsEqualTheCanonicalizedOriginalRecords() error {
	if len(c.decoded) != len(c.canonA) {
		return fmt.Errorf("record count mismatch: decoded %d, original %d", len(c.decoded), len(c.canonA))
	}
	for i := range c.decoded {
		if !canonical.Equal(c.decoded[i], c.canonA[i]) {
			return fmt.Errorf("row %d differs after decode", i)
		}
	}
	return nil
}

func (c *ctx) iEncodeTheRecordsAsTENSBinary() error {
	canon, err := canonical.Canonicalize(c.records)
	if err != nil {
		return err
	}
	c.canonA = canon
	data, err := tens.Encode(c.adapter, canon, 0)
	if err != nil {
		return err
	}
	c.binaryBytes = data
	return nil
}

func (c *ctx) iDecodeTheBinaryPayload() error {
	decoded, err := tens.Decode(c.binaryBytes)
	if err != nil {
		return err
	}
	c.decoded = decoded
	return nil
}

func (c *ctx) aDeterministicGeneratorOfMixedShapeRows(count int) error {
	c.records = generateMixedShapeRows(count)
	return nil
}

func generateMixedShapeRows(n int) []map[string]interface{} {
	unicodeSamples := []string{"café", "naïve", "日本語", "emoji 🎉", "plain"}
	rows := make([]map[string]interface{}, n)
	for i := 0; i < n; i++ {
		row := map[string]interface{}{
			"id":     float64(i),
			"flag":   i%2 == 0,
			"score":  math.Round(float64(i)*1.5*100) / 100,
			"label":  unicodeSamples[i%len(unicodeSamples)],
			"tags":   []interface{}{},
		}
		if i%3 != 0 {
			row["optional"] = fmt.Sprintf("value-%d", i)
		} else {
			row["optional"] = nil
		}
		if i%5 != 0 {
			n := i % 4
			tags := make([]interface{}, 0, n)
			for j := 0; j < n; j++ {
				tags = append(tags, fmt.Sprintf("tag-%d-%d", i, j))
			}
			row["tags"] = tags
		}
		rows[i] = row
	}
	return rows
}

func (c *ctx) aFreshTokenMemoryStore() error {
	dir, err := mkTempDir()
	if err != nil {
		return err
	}
	c.sink = &capturingSink{}
	store, err := tokenmemory.New(dir, c.sink)
	if err != nil {
		return err
	}
	c.store = store
	c.storeRoot = dir
	return nil
}

func (c *ctx) iStoreTheRecords() error {
	res, err := c.store.Store(c.adapter, c.records, 0)
	if err != nil {
		return err
	}
	c.irHash = res.Hash
	return nil
}

func (c *ctx) iMaterializeTheStoredIRForModel(modelID string) error {
	_, reason, err := c.store.MaterializeAndCache(c.adapter, c.irHash, modelID, nil, 0)
	c.lastReason = reason
	c.lastErr = err
	return err
}

func (c *ctx) theMaterializeOutcomeIs(reason string) error {
	if string(c.lastReason) != reason {
		return fmt.Errorf("expected materialize outcome %s, got %s", reason, c.lastReason)
	}
	return nil
}

// theTokenizerFingerprintDrifts rewrites every cached materialization of
// the stored IR so that it carries a fingerprint the active adapter does not
// produce, keeping its encoding and tokenizer version (and so its cache
// key) unchanged.
func (c *ctx) theTokenizerFingerprintDrifts() error {
	metas, err := filepath.Glob(filepath.Join(c.storeRoot, "cache", c.irHash, "*", "meta.json"))
	if err != nil {
		return err
	}
	if len(metas) == 0 {
		return fmt.Errorf("no cached materialization for %s to drift", c.irHash)
	}
	for _, path := range metas {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		var meta map[string]interface{}
		if err := json.Unmarshal(data, &meta); err != nil {
			return err
		}
		meta["tokenizerFingerprint"] = "drifted-" + c.adapter.Fingerprint()
		out, err := json.Marshal(meta)
		if err != nil {
			return err
		}
		if err := os.WriteFile(path, out, 0o644); err != nil {
			return err
		}
	}
	return nil
}

func (c *ctx) iLoadTheMaterializedTokensForModel(modelID string) error {
	_, reason, err := c.store.LoadMaterialized(c.adapter, c.irHash, modelID, nil)
	c.lastReason = reason
	c.lastErr = err
	return err
}

func (c *ctx) theLoadOutcomeIs(reason string) error {
	if string(c.lastReason) != reason {
		return fmt.Errorf("expected load outcome %s, got %s", reason, c.lastReason)
	}
	return nil
}

// registerSteps wires every step pattern to the current scenario's ctx.
// cur.c is set by the sc.Before hook before each scenario runs; each step
// closure dereferences it at call time rather than binding a method value
// up front.
func registerSteps(sc *godog.ScenarioContext, cur *current) {
	sc.Step(`^the records$`, func(doc *godog.DocString) error { return cur.c.theRecords(doc) })
	sc.Step(`^the same records with every row's keys reversed$`, func() error { return cur.c.theSameRecordsWithKeysReversed() })
	sc.Step(`^I canonicalize both record sets$`, func() error { return cur.c.iCanonicalizeBothRecordSets() })
	sc.Step(`^both canonicalizations are equal$`, func() error { return cur.c.bothCanonicalizationsAreEqual() })
	sc.Step(`^I canonicalize the records twice in a row$`, func() error { return cur.c.iCanonicalizeTheRecordsTwice() })
	sc.Step(`^I build the canonical IR for both record sets$`, func() error { return cur.c.iBuildTheCanonicalIRForBothRecordSets() })
	sc.Step(`^both IR hashes are equal$`, func() error { return cur.c.bothIRHashesAreEqual() })
	sc.Step(`^I encode the records as TENS-Text$`, func() error { return cur.c.iEncodeTheRecordsAsTENSText() })
	sc.Step(`^the text document contains the line fragment "([^"]*)"$`, func(s string) error { return cur.c.theTextDocumentContainsTheLineFragment(s) })
	sc.Step(`^I decode the text document$`, func() error { return cur.c.iDecodeTheTextDocument() })
	sc.Step(`^the decoded records equal the canonicalized original records$`, func() error { return cur.c.theDecodedRecordsEqualTheCanonicalizedOriginalRecords() })
	sc.Step(`^I encode the records as TENS binary$`, func() error { return cur.c.iEncodeTheRecordsAsTENSBinary() })
	sc.Step(`^I decode the binary payload$`, func() error { return cur.c.iDecodeTheBinaryPayload() })
	sc.Step(`^a deterministic generator of (\d+) mixed-shape rows$`, func(n int) error { return cur.c.aDeterministicGeneratorOfMixedShapeRows(n) })
	sc.Step(`^a fresh token memory store$`, func() error { return cur.c.aFreshTokenMemoryStore() })
	sc.Step(`^I store the records$`, func() error { return cur.c.iStoreTheRecords() })
	sc.Step(`^I materialize the stored IR for model "([^"]*)"$`, func(m string) error { return cur.c.iMaterializeTheStoredIRForModel(m) })
	sc.Step(`^I materialize the stored IR for model "([^"]*)" again$`, func(m string) error { return cur.c.iMaterializeTheStoredIRForModel(m) })
	sc.Step(`^the materialize outcome is "([^"]*)"$`, func(r string) error { return cur.c.theMaterializeOutcomeIs(r) })
	sc.Step(`^the tokenizer fingerprint drifts$`, func() error { return cur.c.theTokenizerFingerprintDrifts() })
	sc.Step(`^I load the materialized tokens for model "([^"]*)"$`, func(m string) error { return cur.c.iLoadTheMaterializedTokensForModel(m) })
	sc.Step(`^the load outcome is "([^"]*)"$`, func(r string) error { return cur.c.theLoadOutcomeIs(r) })
}

// current holds the ctx for whichever scenario is presently executing.
type current struct {
	c *ctx
}
