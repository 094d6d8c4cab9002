package crawlers

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"strings"
	"testing"

	"github.com/andybalholm/brotli"
)

func TestDecompressResponse(t *testing.T) {
	payload := []byte(`<table id="ldeface"><tr><td>zone</td></tr></table>`)

	compress := map[string]func([]byte) []byte{
		"gzip": func(b []byte) []byte {
			var buf bytes.Buffer
			w := gzip.NewWriter(&buf)
			w.Write(b)
			w.Close()
			return buf.Bytes()
		},
		"deflate": func(b []byte) []byte {
			var buf bytes.Buffer
			w := zlib.NewWriter(&buf)
			w.Write(b)
			w.Close()
			return buf.Bytes()
		},
		"raw-deflate": func(b []byte) []byte {
			var buf bytes.Buffer
			w, _ := flate.NewWriter(&buf, flate.DefaultCompression)
			w.Write(b)
			w.Close()
			return buf.Bytes()
		},
		"br": func(b []byte) []byte {
			var buf bytes.Buffer
			w := brotli.NewWriter(&buf)
			w.Write(b)
			w.Close()
			return buf.Bytes()
		},
	}

	for name, fn := range compress {
		t.Run(name, func(t *testing.T) {
			encoding := strings.TrimPrefix(name, "raw-")
			got, err := decompressResponse(encoding, fn(payload))
			if err != nil {
				t.Fatalf("解压失败: %v", err)
			}
			if !bytes.Equal(got, payload) {
				t.Errorf("解压结果不一致: %s", got)
			}
		})
	}

	t.Run("编码大小写与空白", func(t *testing.T) {
		got, err := decompressResponse(" GZIP ", compress["gzip"](payload))
		if err != nil || !bytes.Equal(got, payload) {
			t.Errorf("解压失败: %v", err)
		}
	})

	t.Run("未知编码返回原文", func(t *testing.T) {
		got, err := decompressResponse("zstd", payload)
		if err != nil || !bytes.Equal(got, payload) {
			t.Errorf("未知编码应原样返回: %v", err)
		}
	})

	t.Run("已解压的gzip原样返回", func(t *testing.T) {
		if got := decodeBody("gzip", payload); !bytes.Equal(got, payload) {
			t.Errorf("已解压内容应原样返回")
		}
	})

	t.Run("zlib封装的deflate响应", func(t *testing.T) {
		got := decodeBody("deflate", compress["deflate"](payload))
		if !bytes.Equal(got, payload) {
			t.Errorf("deflate响应未解压: %q", got)
		}
	})

	t.Run("损坏数据退回原文", func(t *testing.T) {
		broken := []byte{0x1f, 0x8b, 0x00, 0x00}
		if got := decodeBody("gzip", broken); !bytes.Equal(got, broken) {
			t.Errorf("解压失败时应返回原始内容")
		}
	})
}
