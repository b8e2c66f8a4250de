package prettylog_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/kmrgirish/starry/internal/prettylog"
)

func format(t *testing.T, input string, opts ...prettylog.Option) string {
	t.Helper()
	var buffer bytes.Buffer
	writer := prettylog.NewWriter(&buffer, append([]prettylog.Option{prettylog.WithColor(false)}, opts...)...)
	for _, line := range bytes.SplitAfter([]byte(input), []byte("\n")) {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		writer.Write(line)
	}
	return buffer.String()
}

func TestPrettyLog(t *testing.T) {
	testcases := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "syscall",
			input: `{"time":"2024-01-02T03:04:05.678Z","level":"INFO","msg":"syscall","seq":3,"pid":1,"sys":"stat","path":"/musl/busybox","ret":0}`,
			want:  "    3 1/stat         03:04:05.678 INF syscall path=/musl/busybox ret=0\n",
		},
		{
			name:  "errno first",
			input: `{"time":"2024-01-02T03:04:05Z","level":"DEBUG","msg":"syscall","seq":12,"pid":2,"sys":"faccessat2","ret":-2,"errno":"ENOENT","mode":"r--"}`,
			want:  "   12 2/faccessat2   03:04:05.000 DBG syscall errno=ENOENT mode=r-- ret=-2\n",
		},
		{
			name:  "plain record",
			input: `{"time":"2024-01-02T03:04:05Z","level":"WARN","msg":"booting","image":"my root.img"}`,
			want:  "03:04:05.000 WRN booting image=\"my root.img\"\n",
		},
		{
			name:  "source",
			input: `{"time":"2024-01-02T03:04:05Z","level":"ERROR","source":{"function":"x","file":"/src/internal/syscalls/stat.go","line":42},"msg":"bad"}`,
			want:  "03:04:05.000 ERR syscalls/stat.go:42 > bad\n",
		},
		{
			name:  "struct field",
			input: `{"time":"2024-01-02T03:04:05Z","level":"INFO","msg":"stat","pid":1,"stat":{"size":500000}}`,
			want:  "1              03:04:05.000 INF stat\n    stat={\n      \"size\": 500000\n    }\n",
		},
		{
			name:  "not json",
			input: "hello\n",
			want:  "hello\n",
		},
	}

	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			got := format(t, tc.input)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("diff (-want +got):\n%s", diff)
			}
		})
	}
}

func TestColor(t *testing.T) {
	got := format(t, `{"level":"ERROR","msg":"x","errno":"EFAULT"}`, prettylog.WithColor(true))
	if !bytes.Contains([]byte(got), []byte("\x1b[31m")) {
		t.Errorf("expected red in %q", got)
	}
}

func TestUndecodable(t *testing.T) {
	var buffer bytes.Buffer
	writer := prettylog.NewWriter(&buffer, prettylog.WithColor(false))
	if _, err := writer.Write([]byte("plain text\n")); !errors.Is(err, prettylog.ErrUndecodable) {
		t.Errorf("got %v, want ErrUndecodable", err)
	}
	if buffer.String() != "plain text\n" {
		t.Errorf("passthrough %q", buffer.String())
	}
}
