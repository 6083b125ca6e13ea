package capture

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/camkit/camserver/internal/events"
	"github.com/camkit/camserver/internal/ffmpeg"
	"github.com/camkit/camserver/internal/logging"
	"github.com/camkit/camserver/internal/process"
	"github.com/camkit/camserver/internal/sched"
)

// chunkSize bounds the number of frames per intermediate clip so a
// very long sequence does not hand ffmpeg one enormous list.
const chunkSize = 100

// Assembler turns captured frame sequences into timelapse videos.
type Assembler struct {
	binary      string
	capturesDir string
	outDir      string
	bus         *events.Bus
	log         logging.Logger
}

// NewAssembler builds an assembler reading sequences from capturesDir
// and writing finished videos to outDir.
func NewAssembler(ffmpegBinary, capturesDir, outDir string, bus *events.Bus) *Assembler {
	if ffmpegBinary == "" {
		ffmpegBinary = ffmpeg.DefaultBinary
	}
	return &Assembler{
		binary:      ffmpegBinary,
		capturesDir: capturesDir,
		outDir:      outDir,
		bus:         bus,
		log:         logging.GetLogger("timelapse"),
	}
}

// OutDir returns the finished video directory.
func (a *Assembler) OutDir() string {
	return a.outDir
}

// Assemble renders the named sequence into an MP4 at fps and returns
// the output path. Long sequences are rendered as intermediate clips
// that are then stream-copied together.
func (a *Assembler) Assemble(ctx context.Context, name string, fps float64) (string, error) {
	if fps <= 0 {
		fps = 30
	}
	frames, err := ListFrames(filepath.Join(a.capturesDir, name))
	if err != nil {
		return "", err
	}
	if len(frames) == 0 {
		return "", fmt.Errorf("sequence %q has no frames", name)
	}

	if err := os.MkdirAll(a.outDir, 0o755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}
	work, err := os.MkdirTemp("", "timelapse-"+name+"-")
	if err != nil {
		return "", fmt.Errorf("create work directory: %w", err)
	}
	defer os.RemoveAll(work)

	outPath := filepath.Join(a.outDir, fmt.Sprintf("%s-%d.mp4", name, time.Now().UnixMilli()))
	a.log.Info("assembling timelapse", "name", name, "frames", len(frames), "fps", fps)

	var clips []string
	for i := 0; i < len(frames); i += chunkSize {
		end := i + chunkSize
		if end > len(frames) {
			end = len(frames)
		}
		clip := filepath.Join(work, fmt.Sprintf("clip-%04d.mp4", i/chunkSize))
		if err := a.renderClip(ctx, work, frames[i:end], fps, clip); err != nil {
			return "", err
		}
		clips = append(clips, clip)
	}

	if len(clips) == 1 {
		if err := os.Rename(clips[0], outPath); err != nil {
			return "", fmt.Errorf("move clip: %w", err)
		}
	} else {
		listPath, err := writeConcatList(work, "clips.txt", clips)
		if err != nil {
			return "", err
		}
		args := ffmpeg.ConcatCopyArgs(listPath, outPath)
		if err := process.Run(ctx, a.binary, args, a.log, ffmpeg.ParseLogLine); err != nil {
			return "", fmt.Errorf("concat clips: %w", err)
		}
	}

	a.log.Info("timelapse ready", "name", name, "path", outPath)
	if a.bus != nil {
		a.bus.Publish(events.TimelapseReadyEvent{
			Name:      name,
			FilePath:  outPath,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	}
	return outPath, nil
}

func (a *Assembler) renderClip(ctx context.Context, work string, frames []string, fps float64, outPath string) error {
	listPath, err := writeConcatList(work, filepath.Base(outPath)+".txt", frames)
	if err != nil {
		return err
	}
	args := ffmpeg.AssembleArgs(listPath, fps, outPath)
	if err := process.Run(ctx, a.binary, args, a.log, ffmpeg.ParseLogLine); err != nil {
		return fmt.Errorf("render clip %s: %w", filepath.Base(outPath), err)
	}
	return nil
}

// staleWorkAge is how long an assembly work directory may linger
// before the cleanup job removes it. A directory this old belongs to
// a run that was interrupted before its deferred cleanup fired.
const staleWorkAge = 24 * time.Hour

// CleanWork removes assembly work directories left behind by
// interrupted runs.
func (a *Assembler) CleanWork() error {
	entries, err := os.ReadDir(os.TempDir())
	if err != nil {
		return fmt.Errorf("read temp directory: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), "timelapse-") {
			continue
		}
		info, err := e.Info()
		if err != nil || time.Since(info.ModTime()) < staleWorkAge {
			continue
		}
		path := filepath.Join(os.TempDir(), e.Name())
		a.log.Info("removing stale assembly work directory", "path", path)
		if err := os.RemoveAll(path); err != nil {
			return err
		}
	}
	return nil
}

// Scheduled returns the runner job pruning stale work directories.
func (a *Assembler) Scheduled() sched.Job {
	return sched.Job{
		Name:     "timelapse-clean",
		Interval: func() time.Duration { return time.Hour },
		Run:      func(time.Time) error { return a.CleanWork() },
	}
}

// writeConcatList writes an ffmpeg concat demuxer list file.
func writeConcatList(dir, name string, files []string) (string, error) {
	var b strings.Builder
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "file '%s'\n", abs)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return "", fmt.Errorf("write concat list: %w", err)
	}
	return path, nil
}

// Video describes one finished timelapse file.
type Video struct {
	Name      string `json:"name" doc:"Video file name"`
	SizeBytes int64  `json:"sizeBytes" doc:"File size in bytes"`
	Modified  string `json:"modified" doc:"Last modification time, RFC 3339"`
}

// ListVideos returns the finished timelapse files, newest first.
func ListVideos(dir string) ([]Video, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read video directory: %w", err)
	}
	var out []Video
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".mp4") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, Video{
			Name:      e.Name(),
			SizeBytes: info.Size(),
			Modified:  info.ModTime().UTC().Format(time.RFC3339),
		})
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Name > out[k].Name })
	return out, nil
}
