package klog_test

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/kmrgirish/starry/internal/klog"
)

func TestBitflags(t *testing.T) {
	f := &klog.BitflagFormatter{
		Choices: []klog.BitflagChoice{
			{
				Mask: 0x3,
				Values: map[int]string{
					unix.O_RDWR:   "O_RDWR",
					unix.O_RDONLY: "O_RDONLY",
					unix.O_WRONLY: "O_WRONLY",
				},
			},
		},
		Flags: []klog.BitflagValue{
			{Value: unix.O_CREAT, Name: "O_CREAT"},
			{Value: unix.O_EXCL, Name: "O_EXCL"},
		},
	}

	testCases := []struct {
		f        *klog.BitflagFormatter
		value    int
		expected string
	}{
		{f: f, value: unix.O_RDONLY | unix.O_CREAT | unix.O_EXCL, expected: "O_RDONLY|O_CREAT|O_EXCL"},
		{f: f, value: 3 | unix.O_CREAT, expected: "0x3|O_CREAT"},
		{f: klog.AtFlags, value: 0, expected: "0"},
		{f: klog.AtFlags, value: unix.AT_EMPTY_PATH, expected: "AT_EMPTY_PATH"},
		{f: klog.AtFlags, value: unix.AT_EMPTY_PATH | unix.AT_SYMLINK_NOFOLLOW, expected: "AT_EMPTY_PATH|AT_SYMLINK_NOFOLLOW"},
		{f: klog.AtFlags, value: 0x1 | unix.AT_EACCESS, expected: "AT_EACCESS|0x1"},
		{f: klog.AccessModes, value: 0, expected: "F_OK"},
		{f: klog.AccessModes, value: unix.R_OK | unix.X_OK, expected: "R_OK|X_OK"},
		{f: klog.AccessModes, value: 8, expected: "0x8"},
		{f: klog.StatxMask, value: unix.STATX_BASIC_STATS | unix.STATX_BTIME, expected: "STATX_BASIC_STATS|STATX_BTIME"},
		{f: klog.StatxMask, value: unix.STATX_SIZE, expected: "STATX_SIZE"},
	}

	for _, tc := range testCases {
		if got := tc.f.Format(tc.value); got != tc.expected {
			t.Errorf("format %#x: got %s, expected %s", tc.value, got, tc.expected)
		}
	}
}

func TestSequence(t *testing.T) {
	var buf bytes.Buffer
	logger, err := klog.New(&buf, klog.Options{Level: "debug"})
	if err != nil {
		t.Fatal(err)
	}

	logger.Info("first")
	logger.With("pid", 3).Debug("second", "sys", "stat")
	logger.Warn("third", "errno", "ENOENT")

	got := klog.ParseLog(buf.Bytes())
	want := []*klog.Log{
		{Level: slog.LevelInfo, Msg: "first", Seq: 1},
		{Level: slog.LevelDebug, Msg: "second", Seq: 2, Pid: 3, Sys: "stat"},
		{Level: slog.LevelWarn, Msg: "third", Seq: 3, Errno: "ENOENT"},
	}
	if diff := cmp.Diff(want, got, cmpopts.IgnoreFields(klog.Log{}, "Time")); diff != "" {
		t.Errorf("diff (-want +got):\n%s", diff)
	}
}

func TestConcurrentSequence(t *testing.T) {
	var buf lockedBuffer
	logger, err := klog.New(&buf, klog.Options{})
	if err != nil {
		t.Fatal(err)
	}

	const n = 50
	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			logger.Info("hello", "pid", i)
			return nil
		})
	}
	g.Wait()

	logs := klog.ParseLog(buf.Bytes())
	if len(logs) != n {
		t.Fatalf("got %d records", len(logs))
	}
	for i, log := range logs {
		if log.Seq != int64(i+1) {
			t.Fatalf("record %d has seq %d", i, log.Seq)
		}
	}
}

func TestLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := klog.New(&buf, klog.Options{Level: "warn"})
	if err != nil {
		t.Fatal(err)
	}
	logger.Info("dropped")
	logger.Error("kept")
	if logs := klog.ParseLog(buf.Bytes()); len(logs) != 1 || logs[0].Msg != "kept" {
		t.Errorf("unexpected logs %+v", logs)
	}

	t.Setenv(klog.LevelEnv, "debug")
	buf.Reset()
	logger, err = klog.New(&buf, klog.Options{Level: "error"})
	if err != nil {
		t.Fatal(err)
	}
	logger.Debug("kept")
	if logs := klog.ParseLog(buf.Bytes()); len(logs) != 1 {
		t.Errorf("env level ignored: %+v", logs)
	}
}

func TestBadOptions(t *testing.T) {
	if _, err := klog.New(&bytes.Buffer{}, klog.Options{Level: "loud"}); err == nil {
		t.Error("expected bad level to fail")
	}
	if _, err := klog.New(&bytes.Buffer{}, klog.Options{Format: "xml"}); err == nil {
		t.Error("expected bad format to fail")
	}
}

func TestTracer(t *testing.T) {
	var buf bytes.Buffer
	logger, err := klog.New(&buf, klog.Options{})
	if err != nil {
		t.Fatal(err)
	}
	tracer, err := klog.NewTracer(logger)
	if err != nil {
		t.Fatal(err)
	}

	logger.Info("hello from slog")
	tracer.Info("hello from zap")

	var msgs []string
	for _, log := range klog.ParseLog(buf.Bytes()) {
		msgs = append(msgs, log.Msg)
	}
	if diff := cmp.Diff([]string{"hello from slog", "hello from zap"}, msgs); diff != "" {
		t.Errorf("diff (-want +got):\n%s", diff)
	}
}
