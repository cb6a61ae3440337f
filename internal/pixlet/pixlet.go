// Package pixlet renders applets to GIF with the pixlet CLI and turns the
// result into scenes.
package pixlet

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/coreman2200/funtimes-arcaluminis/internal/config"
)

// ErrNoArtifact means the render did not produce a GIF. Callers retry on
// their next cycle.
var ErrNoArtifact = errors.New("pixlet: no artifact")

const DefaultBinary = "pixlet"

// Artifact is a rendered GIF on disk. Hash is empty when the file could not
// be hashed.
type Artifact struct {
	Path string
	Hash string
}

// Renderer runs the pixlet binary into a private output directory.
type Renderer struct {
	binary string
	outDir string
}

// New resolves binary on PATH and creates outDir.
func New(binary, outDir string) (*Renderer, error) {
	if binary == "" {
		binary = DefaultBinary
	}
	path, err := exec.LookPath(binary)
	if err != nil {
		return nil, fmt.Errorf("pixlet binary %q not found, make sure it is in PATH: %w", binary, err)
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &Renderer{binary: path, outDir: outDir}, nil
}

// Close removes the output directory and every GIF in it.
func (r *Renderer) Close() error {
	if err := os.RemoveAll(r.outDir); err != nil {
		return err
	}
	log.Debug().Str("dir", r.outDir).Msg("removed render dir")
	return nil
}

// OutputPath is where the GIF for a is written: the applet file name up to
// its first dot, plus ".gif".
func (r *Renderer) OutputPath(a config.Applet) string {
	name := strings.SplitN(filepath.Base(a.Path), ".", 2)[0]
	return filepath.Join(r.outDir, name+".gif")
}

// Render runs `pixlet render --gif` for a and hashes the result.
func (r *Renderer) Render(ctx context.Context, a config.Applet) (Artifact, error) {
	out := r.OutputPath(a)
	if err := os.Remove(out); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Artifact{}, fmt.Errorf("%w: remove previous gif: %w", ErrNoArtifact, err)
	}

	args := append([]string{"render", "--gif", "--output", out, a.Path}, SchemaArgs(a.SchemaVals)...)
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, r.binary, args...)
	cmd.Stdout = io.Discard
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		log.Warn().Err(err).Str("applet", a.Name).Str("stderr", strings.TrimSpace(stderr.String())).Msg("pixlet render failed")
		return Artifact{}, fmt.Errorf("%w: %s: %w", ErrNoArtifact, a.Path, err)
	}
	if _, err := os.Stat(out); err != nil {
		return Artifact{}, fmt.Errorf("%w: %s", ErrNoArtifact, out)
	}

	art := Artifact{Path: out}
	hash, err := fileMD5(out)
	if err != nil {
		log.Warn().Err(err).Str("path", out).Msg("rendered gif but could not hash it")
		return art, nil
	}
	art.Hash = hash
	return art, nil
}

func fileMD5(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// SchemaArgs renders applet schema values as key=value arguments, sorted by
// key. Maps and lists are passed as JSON.
func SchemaArgs(vals map[string]any) []string {
	keys := make([]string, 0, len(vals))
	for k := range vals {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	args := make([]string, 0, len(keys))
	for _, k := range keys {
		v := vals[k]
		switch v.(type) {
		case map[string]any, []any:
			b, err := json.Marshal(v)
			if err != nil {
				log.Warn().Err(err).Str("key", k).Msg("schema value is not JSON encodable")
				continue
			}
			args = append(args, fmt.Sprintf("%s=%s", k, b))
		default:
			args = append(args, fmt.Sprintf("%s=%v", k, v))
		}
	}
	return args
}
