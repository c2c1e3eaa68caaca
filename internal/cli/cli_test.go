package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/slotstore/internal/escrow"
	"github.com/roach88/slotstore/internal/feed"
	"github.com/roach88/slotstore/internal/ledger"
	"github.com/roach88/slotstore/internal/shape"
)

// testCLI runs commands against one temp ledger and key file.
type testCLI struct {
	t    *testing.T
	base []string
}

func newTestCLI(t *testing.T) *testCLI {
	t.Helper()
	dir := t.TempDir()
	return &testCLI{t: t, base: []string{
		"--db", filepath.Join(dir, "ledger.db"),
		"--keypair", filepath.Join(dir, "id.json"),
	}}
}

// run executes args and returns stdout and the exit code.
func (c *testCLI) run(args ...string) (string, int) {
	c.t.Helper()
	var out, errOut bytes.Buffer
	code := Execute(context.Background(), append(append([]string{}, c.base...), args...), &out, &errOut)
	return out.String(), code
}

// json executes args with --format json and decodes the response.
func (c *testCLI) json(args ...string) (CLIResponse, int) {
	c.t.Helper()
	out, code := c.run(append([]string{"--format", "json"}, args...)...)
	var resp CLIResponse
	require.NoError(c.t, json.Unmarshal([]byte(out), &resp), out)
	return resp, code
}

// ok executes args, requires success and returns the data object.
func (c *testCLI) ok(args ...string) map[string]interface{} {
	c.t.Helper()
	resp, code := c.json(args...)
	require.Equal(c.t, ExitSuccess, code, "%v: %+v", args, resp.Error)
	data, _ := resp.Data.(map[string]interface{})
	return data
}

// fail executes args, requires a ledger rejection and returns its code.
func (c *testCLI) fail(args ...string) *CLIError {
	c.t.Helper()
	resp, code := c.json(args...)
	require.Equal(c.t, ExitFailure, code, "%v", args)
	require.Equal(c.t, "error", resp.Status)
	require.NotNil(c.t, resp.Error)
	return resp.Error
}

func TestCLI_RecordLifecycle(t *testing.T) {
	c := newTestCLI(t)
	reserve := float64(ledger.DefaultRent.MinimumBalance(shape.MaxSize(&shape.MovieReview)))

	key := c.ok("keygen")
	pubkey := key["pubkey"].(string)

	bal := c.ok("airdrop", "10000000")
	assert.Equal(t, pubkey, bal["pubkey"])
	assert.Equal(t, float64(10_000_000), bal["balance"])

	rec := c.ok("record", "create", "movie_review", "Heat", "--payload", `{"rating":5,"description":"Great"}`)
	assert.Equal(t, "Heat", rec["key"])
	assert.Equal(t, pubkey, rec["owner"])
	assert.Equal(t, float64(shape.MaxSize(&shape.MovieReview)), rec["size"], "created at full size")
	assert.Equal(t, reserve, rec["lamports"])

	e := c.fail("record", "create", "movie_review", "Heat", "--payload", `{"rating":1,"description":"x"}`)
	assert.Equal(t, "ALREADY_EXISTS", e.Code)

	e = c.fail("record", "update", "movie_review", "Heat", "--payload",
		`{"rating":4,"description":"`+strings.Repeat("x", 51)+`"}`)
	assert.Equal(t, "FIELD_TOO_LONG", e.Code)
	assert.Equal(t, "description", e.Details.(map[string]interface{})["field"])

	rec = c.ok("record", "update", "movie_review", "Heat", "--payload", `{"rating":4,"description":"Still great"}`)
	updatedSize := 8 + 32 + 1 + 4 + len("Heat") + 4 + len("Still great")
	assert.Equal(t, float64(updatedSize), rec["size"], "resized to the payload")
	fields := rec["fields"].(map[string]interface{})
	assert.Equal(t, float64(4), fields["rating"])
	assert.Equal(t, "Still great", fields["description"])
	assert.Equal(t, "Heat", fields["title"])

	out, code := c.run("record", "show", "movie_review", "Heat", "--layout")
	require.Equal(t, ExitSuccess, code, out)
	assert.Contains(t, out, `title = "Heat"`)
	assert.Contains(t, out, "0000 discriminator")

	del := c.ok("record", "delete", "movie_review", "Heat")
	assert.Equal(t, float64(ledger.DefaultRent.MinimumBalance(updatedSize)), del["reclaimed"])

	e = c.fail("record", "show", "movie_review", "Heat")
	assert.Equal(t, "NOT_FOUND", e.Code)

	bal = c.ok("balance")
	assert.Equal(t, float64(10_000_000), bal["lamports"])
}

func TestCLI_EscrowWithFeed(t *testing.T) {
	c := newTestCLI(t)
	escrowReserve := ledger.DefaultRent.MinimumBalance(escrow.Size)
	feedReserve := ledger.DefaultRent.MinimumBalance(feed.Size)

	c.ok("keygen")
	c.ok("airdrop", "10000000")

	e := c.fail("escrow", "withdraw")
	assert.Equal(t, "NOT_FOUND", e.Code)

	c.ok("feed", "publish", "SOL/USD", "20")
	esc := c.ok("escrow", "deposit", "1000", "25")
	assert.Equal(t, float64(1000), esc["escrow_amount"])
	assert.Equal(t, float64(25), esc["unlock_price"])

	e = c.fail("escrow", "withdraw")
	assert.Equal(t, "CONDITION_NOT_MET", e.Code)

	shown := c.ok("escrow", "show")
	assert.Equal(t, esc["address"], shown["address"])

	c.ok("feed", "publish", "SOL/USD", "30")
	released := c.ok("escrow", "withdraw")
	assert.Equal(t, float64(1000+escrowReserve), released["released"])

	bal := c.ok("balance")
	assert.Equal(t, float64(10_000_000-feedReserve), bal["lamports"])

	resp, code := c.json("log", "--limit", "1")
	require.Equal(t, ExitSuccess, code)
	events := resp.Data.([]interface{})
	require.Len(t, events, 1)
	assert.Equal(t, "escrow.withdraw", events[0].(map[string]interface{})["instruction"])
}

func TestCLI_EscrowPriceOverride(t *testing.T) {
	c := newTestCLI(t)
	c.ok("keygen")
	c.ok("airdrop", "10000000")
	c.ok("escrow", "deposit", "1000", "25")

	// No feed has been published; --price bypasses it.
	e := c.fail("escrow", "withdraw")
	assert.Equal(t, "NOT_FOUND", e.Code)

	e = c.fail("escrow", "withdraw", "--price", "24.99")
	assert.Equal(t, "CONDITION_NOT_MET", e.Code)

	c.ok("escrow", "withdraw", "--price", "25")
}

func TestCLI_AddressIsPure(t *testing.T) {
	c := newTestCLI(t)
	key := c.ok("keygen")
	owner := key["pubkey"].(string)

	a := c.ok("address", "record", "movie_review", "Heat")
	b := c.ok("address", "record", "movie_review", "Heat", "--owner", owner)
	assert.Equal(t, a, b)

	e := c.fail("address", "record", "movie_review", strings.Repeat("t", 33))
	assert.Equal(t, "FIELD_TOO_LONG", e.Code)

	esc := c.ok("address", "escrow")
	assert.NotEqual(t, a["address"], esc["address"])
}

func TestCLI_Shapes(t *testing.T) {
	c := newTestCLI(t)

	resp, code := c.json("shape", "list")
	require.Equal(t, ExitSuccess, code)
	assert.Equal(t, []interface{}{"movie_review", "student_info"}, resp.Data)

	d := c.ok("shape", "describe", "movie_review")
	assert.Equal(t, float64(119), d["max_size"])
	assert.Equal(t, float64(1719120), d["reserve"])

	out, code := c.run("shape", "describe", "student_info")
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, out, "max size: 118 bytes")
	assert.Contains(t, out, "name         string max 20 bytes")

	_, code = c.run("shape", "describe", "nope")
	assert.Equal(t, ExitCommandError, code)
}

func TestCLI_CommandErrors(t *testing.T) {
	c := newTestCLI(t)

	out, code := c.run("balance")
	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, out, "slotstore keygen")

	_, code = c.run("airdrop", "lots")
	assert.Equal(t, ExitCommandError, code)

	_, code = c.run("--format", "xml", "shape", "list")
	assert.Equal(t, ExitCommandError, code)

	c.ok("keygen")
	_, code = c.run("keygen")
	assert.Equal(t, ExitCommandError, code, "existing key file is not overwritten")
	c.ok("keygen", "--force")
}
