package capture

import (
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/shuttlescope/internal/match"
	"github.com/ayusman/shuttlescope/testdata"
)

func TestNewVideoFile(t *testing.T) {
	v := NewVideoFile("match.mp4")
	if v == nil {
		t.Fatal("NewVideoFile returned nil")
	}
	if v.IsOpen() {
		t.Error("source should not be open initially")
	}
}

func TestVideoFile_ReadFrame_NotOpened(t *testing.T) {
	v := NewVideoFile("match.mp4")

	_, err := v.ReadFrame()
	if !errors.Is(err, ErrSourceNotOpen) {
		t.Errorf("ReadFrame() error = %v, want ErrSourceNotOpen", err)
	}
}

func TestVideoFile_Close_NotOpened(t *testing.T) {
	v := NewVideoFile("match.mp4")

	// Close on not opened source should not panic and return nil
	if err := v.Close(); err != nil {
		t.Errorf("Close() on not opened source should return nil, got: %v", err)
	}
}

func TestVideoFile_Open_Missing(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires OpenCV video I/O")
	}

	v := NewVideoFile(filepath.Join(t.TempDir(), "missing.avi"))
	if err := v.Open(); err == nil {
		v.Close()
		t.Fatal("Open() should fail for a missing file")
	}
	if v.IsOpen() {
		t.Error("IsOpen() should return false after a failed Open()")
	}
}

func TestVideoFile_Playback_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	frames := testdata.LoadSequence([]*match.Point{{X: 0.2, Y: 0.5}, {X: 0.3, Y: 0.5}, {X: 0.4, Y: 0.5}, {X: 0.5, Y: 0.5}})
	defer testdata.CloseAll(frames)

	path := filepath.Join(t.TempDir(), "clip.avi")
	if err := testdata.WriteVideo(path, frames, 25); err != nil {
		t.Skipf("skipping test - video encoding not available: %v", err)
	}

	v := NewVideoFile(path)
	if err := v.Open(); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer v.Close()

	meta := v.Metadata()
	if meta.Width != testdata.Width || meta.Height != testdata.Height {
		t.Errorf("Metadata() size = %dx%d, want %dx%d", meta.Width, meta.Height, testdata.Width, testdata.Height)
	}

	read := 0
	for {
		f, err := v.ReadFrame()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("ReadFrame() error = %v", err)
		}
		if f.Index != read {
			t.Errorf("frame index = %d, want %d", f.Index, read)
		}
		f.Close()
		read++
	}
	if read != len(frames) {
		t.Errorf("read %d frames, want %d", read, len(frames))
	}
}

func TestMockSource_Playback(t *testing.T) {
	frame1 := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer frame1.Close()
	frame2 := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer frame2.Close()

	src := NewMockSource([]*gocv.Mat{&frame1, &frame2}, 50)

	if err := src.Open(); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer src.Close()

	meta := src.Metadata()
	if meta.Width != 640 || meta.Height != 480 || meta.FrameCount != 2 {
		t.Errorf("Metadata() = %+v", meta)
	}

	for i := 0; i < 2; i++ {
		f, err := src.ReadFrame()
		if err != nil {
			t.Fatalf("ReadFrame() error = %v", err)
		}
		if f.Index != i {
			t.Errorf("Index = %d, want %d", f.Index, i)
		}
		if want := time.Duration(i) * 20 * time.Millisecond; f.Timestamp != want {
			t.Errorf("Timestamp = %v, want %v", f.Timestamp, want)
		}
		f.Close()
	}

	// Third read ends the stream
	if _, err := src.ReadFrame(); !errors.Is(err, io.EOF) {
		t.Errorf("ReadFrame() error = %v, want io.EOF", err)
	}
}

func TestMockSource_Corrupt(t *testing.T) {
	src := NewBlankSource(4, 30)
	src.SetCorrupt(1, 2)
	src.Open()
	defer src.Close()

	var corrupt, good []int
	for i := 0; i < 4; i++ {
		f, err := src.ReadFrame()
		switch {
		case errors.Is(err, ErrCorruptFrame):
			corrupt = append(corrupt, i)
		case err != nil:
			t.Fatalf("ReadFrame() error = %v", err)
		default:
			good = append(good, f.Index)
			f.Close()
		}
	}
	if len(corrupt) != 2 || corrupt[0] != 1 || corrupt[1] != 2 {
		t.Errorf("corrupt frames = %v, want [1 2]", corrupt)
	}
	if len(good) != 2 || good[0] != 0 || good[1] != 3 {
		t.Errorf("good frames = %v, want [0 3]", good)
	}
}

func TestMockSource_NotOpened(t *testing.T) {
	src := NewBlankSource(1, 30)
	if _, err := src.ReadFrame(); !errors.Is(err, ErrSourceNotOpen) {
		t.Errorf("ReadFrame() error = %v, want ErrSourceNotOpen", err)
	}

	boom := errors.New("boom")
	src.SetOpenError(boom)
	if err := src.Open(); !errors.Is(err, boom) {
		t.Errorf("Open() error = %v, want %v", err, boom)
	}
}
