package crawlers

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/RecoveryAshes/zonehwatch/internal/utils"
	"github.com/andybalholm/brotli"
)

// decompressResponse 根据Content-Encoding头部解压响应体
// 支持 gzip, deflate (zlib 或裸流), br (Brotli) 三种压缩格式
func decompressResponse(contentEncoding string, body []byte) ([]byte, error) {
	encoding := strings.ToLower(strings.TrimSpace(contentEncoding))

	var reader io.Reader
	switch encoding {
	case "":
		return body, nil
	case "gzip":
		gz, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("gzip解压失败: %w", err)
		}
		defer gz.Close()
		reader = gz
	case "deflate":
		// 按 RFC 9110 应为 zlib 封装,部分服务器发送裸 deflate 流
		zr, err := zlib.NewReader(bytes.NewReader(body))
		if err == nil {
			defer zr.Close()
			reader = zr
			break
		}
		if !errors.Is(err, zlib.ErrHeader) {
			return nil, fmt.Errorf("deflate解压失败: %w", err)
		}
		fl := flate.NewReader(bytes.NewReader(body))
		defer fl.Close()
		reader = fl
	case "br":
		reader = brotli.NewReader(bytes.NewReader(body))
	default:
		utils.Warnf("未知的Content-Encoding: %s", contentEncoding)
		return body, nil
	}

	decompressed, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("%s读取失败: %w", encoding, err)
	}
	return decompressed, nil
}

// gzipMagic gzip流的前两个字节
var gzipMagic = []byte{0x1f, 0x8b}

// decodeBody 解压响应体,失败时退回原始内容
// colly 已经解开 gzip 但保留了 Content-Encoding,这种情况直接返回
func decodeBody(contentEncoding string, body []byte) []byte {
	if contentEncoding == "" {
		return body
	}
	if strings.EqualFold(strings.TrimSpace(contentEncoding), "gzip") && !bytes.HasPrefix(body, gzipMagic) {
		return body
	}
	decoded, err := decompressResponse(contentEncoding, body)
	if err != nil {
		utils.Warnf("解压响应失败 (编码=%s): %v", contentEncoding, err)
		return body
	}
	return decoded
}
