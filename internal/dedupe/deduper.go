// Package dedupe collapses identical concurrent operations onto a single
// execution. The registry is an explicit component owned by the process, not
// a package-level global.
package dedupe

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/singleflight"
)

// Deduper is a keyed in-flight registry: a second caller with a key already
// pending awaits the first execution's result. Entries never outlive their
// operation; panics remove the entry before propagating.
type Deduper struct {
	group singleflight.Group
}

// New creates a Deduper.
func New() *Deduper {
	return &Deduper{}
}

// Do executes fn under key, sharing the result with concurrent callers
// holding the same key. The shared flag reports whether the result was
// produced by another caller's execution. A panicking fn surfaces as an
// error to every waiter; the entry never outlives the operation.
func (d *Deduper) Do(ctx context.Context, key string, fn func(ctx context.Context) (any, error)) (any, bool, error) {
	result := d.group.DoChan(key, func() (val any, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("deduped operation panicked: %v", r)
			}
		}()
		return fn(ctx)
	})

	select {
	case <-ctx.Done():
		// The waiting caller gives up; the in-flight execution continues for
		// whoever else is waiting on it.
		d.group.Forget(key)
		return nil, false, ctx.Err()
	case res := <-result:
		return res.Val, res.Shared, res.Err
	}
}

// RunKey builds the whole-run dedupe key from the target URL and an options
// fingerprint.
func RunKey(targetURL string, options any) string {
	data, err := json.Marshal(options)
	if err != nil {
		data = []byte(fmt.Sprintf("%v", options))
	}
	hash := sha256.Sum256(data)
	return "run:" + targetURL + ":" + hex.EncodeToString(hash[:8])
}

// StageKey builds a finer-grained key for intra-stage operations, e.g.
// StageKey("match", benchmarkID).
func StageKey(op string, parts ...string) string {
	key := "stage:" + op
	for _, p := range parts {
		key += ":" + p
	}
	return key
}
