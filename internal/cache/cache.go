// Package cache memoizes synthesized audio by request fingerprint.
//
// Each entry is two blobs in a core.ObjectStore: the audio itself, named
// <fingerprint>.<format> (plus ".zst" when compressed), and a JSON sidecar
// named <fingerprint>.json that records when and how the audio was produced.
// The audio is written first and the sidecar last, so an entry becomes
// visible only once both exist. Any problem while reading an entry is
// reported as a miss. Expired entries are left in place until Purge.
package cache

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/book-expert/logger"
	"github.com/klauspost/compress/zstd"

	"github.com/book-expert/voice-engine/internal/core"
)

const (
	sidecarSuffix    = ".json"
	compressedSuffix = ".zst"
	// DefaultTTL is the validity window of an entry.
	DefaultTTL = 24 * time.Hour
)

var (
	// ErrPurgeUnsupported indicates a store that cannot enumerate its blobs.
	ErrPurgeUnsupported = errors.New("cache store does not support listing")
	// ErrNilArtifact indicates an attempt to store nothing.
	ErrNilArtifact = errors.New("artifact cannot be nil")
)

// Lister is implemented by stores that can enumerate their blobs.
type Lister interface {
	List(ctx context.Context) ([]string, error)
}

// record is the sidecar of one entry.
type record struct {
	// Timestamp is the creation time in Unix seconds.
	Timestamp    float64           `json:"timestamp"`
	Format       string            `json:"format"`
	Duration     float64           `json:"duration"`
	ProviderUsed core.Backend      `json:"provider_used"`
	Metadata     map[string]string `json:"metadata"`
	Size         int               `json:"size"`
	AudioSHA256  string            `json:"audio_sha256"`
	Compressed   bool              `json:"compressed,omitempty"`
}

func (r record) blobName(fingerprint string) string {
	name := fingerprint + "." + r.Format
	if r.Compressed {
		name += compressedSuffix
	}

	return name
}

func (r record) createdAt() time.Time {
	return time.UnixMicro(int64(math.Round(r.Timestamp * 1e6)))
}

// Stats counts cache outcomes since construction.
type Stats struct {
	Hits          int64
	Misses        int64
	Expired       int64
	Writes        int64
	WriteFailures int64
}

// Options configures a Cache.
type Options struct {
	// TTL defaults to DefaultTTL when zero.
	TTL time.Duration
	// CompressionLevel enables zstd compression of audio blobs when positive.
	// Blobs are stored compressed only when that makes them smaller.
	CompressionLevel int
	// Now defaults to time.Now.
	Now func() time.Time
}

// Cache is safe for concurrent use. Writers of the same fingerprint race with
// last-write-wins semantics; a reader that sees a sidecar from one writer and
// audio from another detects the mismatch by hash and reports a miss.
type Cache struct {
	store   core.ObjectStore
	ttl     time.Duration
	now     func() time.Time
	log     *logger.Logger
	encoder *zstd.Encoder
	decoder *zstd.Decoder

	hits          atomic.Int64
	misses        atomic.Int64
	expired       atomic.Int64
	writes        atomic.Int64
	writeFailures atomic.Int64

	// orphans holds the blobs without a live sidecar seen by the last Purge.
	orphansMu sync.Mutex
	orphans   map[string]struct{}
}

// New creates a Cache over store.
func New(store core.ObjectStore, opts Options, log *logger.Logger) (*Cache, error) {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}

	var encoder *zstd.Encoder

	if opts.CompressionLevel > 0 {
		level := zstd.EncoderLevelFromZstd(opts.CompressionLevel)

		encoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(level))
		if err != nil {
			decoder.Close()

			return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
		}
	}

	return &Cache{
		store:   store,
		ttl:     ttl,
		now:     now,
		log:     log,
		encoder: encoder,
		decoder: decoder,
		orphans: make(map[string]struct{}),
	}, nil
}

// Close releases the compression resources.
func (c *Cache) Close() error {
	c.decoder.Close()

	if c.encoder != nil {
		err := c.encoder.Close()
		if err != nil {
			return fmt.Errorf("failed to close zstd encoder: %w", err)
		}
	}

	return nil
}

// Lookup returns the entry for fingerprint if it exists, is intact, and is
// younger than the TTL.
func (c *Cache) Lookup(ctx context.Context, fingerprint string) (*core.AudioArtifact, bool) {
	rec, ok := c.readRecord(ctx, fingerprint)
	if !ok {
		c.misses.Add(1)

		return nil, false
	}

	if c.isExpired(rec) {
		c.expired.Add(1)
		c.misses.Add(1)

		return nil, false
	}

	audio, ok := c.readAudio(ctx, fingerprint, rec)
	if !ok {
		c.misses.Add(1)

		return nil, false
	}

	c.hits.Add(1)

	return &core.AudioArtifact{
		Audio:    audio,
		Format:   rec.Format,
		Duration: rec.Duration,
		Backend:  rec.ProviderUsed,
		Metadata: rec.Metadata,
	}, true
}

// Store writes artifact under fingerprint, replacing any previous entry.
func (c *Cache) Store(ctx context.Context, fingerprint string, artifact *core.AudioArtifact) error {
	if artifact == nil {
		c.writeFailures.Add(1)

		return ErrNilArtifact
	}

	digest := sha256.Sum256(artifact.Audio)
	rec := record{
		Timestamp:    float64(c.now().UnixMicro()) / 1e6,
		Format:       artifact.Format,
		Duration:     artifact.Duration,
		ProviderUsed: artifact.Backend,
		Metadata:     artifact.Metadata,
		Size:         len(artifact.Audio),
		AudioSHA256:  hex.EncodeToString(digest[:]),
		Compressed:   false,
	}

	blob := artifact.Audio

	if c.encoder != nil {
		compressed := c.encoder.EncodeAll(artifact.Audio, nil)
		if len(compressed) < len(artifact.Audio) {
			blob = compressed
			rec.Compressed = true
		}
	}

	sidecar, err := json.Marshal(rec)
	if err != nil {
		c.writeFailures.Add(1)

		return fmt.Errorf("failed to marshal cache record: %w", err)
	}

	err = c.store.Upload(ctx, rec.blobName(fingerprint), blob)
	if err != nil {
		c.writeFailures.Add(1)

		return fmt.Errorf("failed to write cached audio: %w", err)
	}

	err = c.store.Upload(ctx, fingerprint+sidecarSuffix, sidecar)
	if err != nil {
		c.writeFailures.Add(1)

		return fmt.Errorf("failed to write cache record: %w", err)
	}

	c.writes.Add(1)

	return nil
}

// Purge removes every expired or malformed entry and returns how many blobs
// and entries it removed. Audio blobs that no live sidecar references are
// removed once two consecutive purges have seen them, so a Store whose
// sidecar is still in flight keeps its audio.
func (c *Cache) Purge(ctx context.Context) (int, error) {
	lister, ok := c.store.(Lister)
	if !ok {
		return 0, ErrPurgeUnsupported
	}

	names, err := lister.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list cache entries: %w", err)
	}

	removed := 0
	live := make(map[string]string)
	purged := make(map[string]struct{})

	var blobs []string

	for _, name := range names {
		fingerprint, isSidecar := strings.CutSuffix(name, sidecarSuffix)
		if !isSidecar {
			blobs = append(blobs, name)

			continue
		}

		raw, rec, ok := c.readRawRecord(ctx, fingerprint)
		if raw == nil {
			continue
		}

		if ok && !c.isExpired(rec) {
			live[fingerprint] = rec.blobName(fingerprint)

			continue
		}

		if c.removeIfUnchanged(ctx, fingerprint, raw, rec) {
			purged[fingerprint] = struct{}{}
			removed++
		}
	}

	removed += c.purgeOrphans(ctx, blobs, live, purged)

	return removed, nil
}

// purgeOrphans deletes blobs that were already orphaned at the previous purge.
func (c *Cache) purgeOrphans(
	ctx context.Context,
	blobs []string,
	live map[string]string,
	purged map[string]struct{},
) int {
	c.orphansMu.Lock()
	defer c.orphansMu.Unlock()

	current := make(map[string]struct{})
	removed := 0

	for _, name := range blobs {
		fingerprint, _, _ := strings.Cut(name, ".")
		if live[fingerprint] == name {
			continue
		}

		if _, done := purged[fingerprint]; done {
			continue
		}

		if _, seen := c.orphans[name]; !seen {
			current[name] = struct{}{}

			continue
		}

		err := c.store.Delete(ctx, name)
		if err != nil {
			c.log.Warn("Failed to remove orphaned cache blob %s: %v", name, err)
			current[name] = struct{}{}

			continue
		}

		removed++
	}

	c.orphans = current

	return removed
}

// Stats returns a snapshot of the counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:          c.hits.Load(),
		Misses:        c.misses.Load(),
		Expired:       c.expired.Load(),
		Writes:        c.writes.Load(),
		WriteFailures: c.writeFailures.Load(),
	}
}

func (c *Cache) isExpired(rec record) bool {
	return c.now().Sub(rec.createdAt()) >= c.ttl
}

func (c *Cache) readRecord(ctx context.Context, fingerprint string) (record, bool) {
	_, rec, ok := c.readRawRecord(ctx, fingerprint)

	return rec, ok
}

// readRawRecord returns the sidecar bytes as stored, or nil when it cannot be
// read, alongside the decoded record.
func (c *Cache) readRawRecord(ctx context.Context, fingerprint string) ([]byte, record, bool) {
	var rec record

	raw, err := c.store.Download(ctx, fingerprint+sidecarSuffix)
	if err != nil {
		if !errors.Is(err, core.ErrObjectNotFound) {
			c.log.Warn("Cache record %s unreadable: %v", fingerprint, err)
		}

		return nil, rec, false
	}

	err = json.Unmarshal(raw, &rec)
	if err != nil || rec.Format == "" {
		c.log.Warn("Cache record %s malformed: %v", fingerprint, err)

		return raw, rec, false
	}

	return raw, rec, true
}

func (c *Cache) readAudio(ctx context.Context, fingerprint string, rec record) ([]byte, bool) {
	blob, err := c.store.Download(ctx, rec.blobName(fingerprint))
	if err != nil {
		if !errors.Is(err, core.ErrObjectNotFound) {
			c.log.Warn("Cached audio %s unreadable: %v", fingerprint, err)
		}

		return nil, false
	}

	audio := blob

	if rec.Compressed {
		audio, err = c.decoder.DecodeAll(blob, nil)
		if err != nil {
			c.log.Warn("Cached audio %s cannot be decompressed: %v", fingerprint, err)

			return nil, false
		}
	}

	digest := sha256.Sum256(audio)
	if len(audio) != rec.Size || hex.EncodeToString(digest[:]) != rec.AudioSHA256 {
		c.log.Warn("Cached audio %s does not match its record", fingerprint)

		return nil, false
	}

	return audio, true
}

// removeIfUnchanged deletes the entry only while its sidecar still holds raw,
// leaving an entry rewritten by a concurrent Store in place. The sidecar goes
// first so that the entry disappears atomically.
func (c *Cache) removeIfUnchanged(ctx context.Context, fingerprint string, raw []byte, rec record) bool {
	current, _, _ := c.readRawRecord(ctx, fingerprint)
	if !bytes.Equal(current, raw) {
		return false
	}

	err := c.store.Delete(ctx, fingerprint+sidecarSuffix)
	if err != nil {
		c.log.Warn("Failed to remove cache record %s: %v", fingerprint, err)

		return false
	}

	if rec.Format == "" {
		return true
	}

	err = c.store.Delete(ctx, rec.blobName(fingerprint))
	if err != nil {
		c.log.Warn("Failed to remove cached audio %s: %v", fingerprint, err)
	}

	return true
}
