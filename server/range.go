package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"X402FM/logger"
)

// 按扩展名静态映射内容类型，未识别的扩展名退回通用二进制类型
var contentTypes = map[string]string{
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".ogg":  "audio/ogg",
	".m4a":  "audio/mp4",
	".flac": "audio/flac",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".jfif": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// detectContentType 根据文件扩展名检测内容类型
func detectContentType(path, fallback string) string {
	if ct, ok := contentTypes[strings.ToLower(filepath.Ext(path))]; ok {
		return ct
	}
	return fallback
}

// errUnsatisfiableRange 范围无法满足：多段、后缀式、起点越界或格式错误
var errUnsatisfiableRange = errors.New("range not satisfiable")

// byteRange 一段连续的字节区间，闭区间
type byteRange struct {
	start int64
	end   int64
}

func (b byteRange) length() int64 {
	return b.end - b.start + 1
}

// parseRange 解析 bytes=start-end 形式的Range头。
// 只支持单段、带起点的区间；end 省略时取 size-1，超出时收敛到 size-1。
// 多段请求、后缀式请求（bytes=-N）和起点越界一律判定为无法满足。
func parseRange(spec string, size int64) (*byteRange, error) {
	spec = strings.TrimSpace(spec)
	if !strings.HasPrefix(spec, "bytes=") {
		return nil, errUnsatisfiableRange
	}
	spec = strings.TrimPrefix(spec, "bytes=")

	if strings.Contains(spec, ",") {
		return nil, errUnsatisfiableRange
	}

	parts := strings.SplitN(spec, "-", 2)
	if len(parts) != 2 || parts[0] == "" {
		return nil, errUnsatisfiableRange
	}

	start, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || start < 0 || start >= size {
		return nil, errUnsatisfiableRange
	}

	end := size - 1
	if parts[1] != "" {
		end, err = strconv.ParseInt(parts[1], 10, 64)
		if err != nil || end < start {
			return nil, errUnsatisfiableRange
		}
		if end > size-1 {
			end = size - 1
		}
	}

	return &byteRange{start: start, end: end}, nil
}

// writeStreamingHeaders 写入受保护音频的响应头：
// 仅允许内联播放、禁止嗅探、禁止缓存、禁止内嵌、不转发来源。
// 禁止缓存保证过期是逐请求生效的，而不是只在首次加载时检查。
func writeStreamingHeaders(w http.ResponseWriter, contentType string) {
	h := w.Header()
	h.Set("Content-Type", contentType)
	h.Set("Accept-Ranges", "bytes")
	h.Set("Content-Disposition", "inline")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("Cache-Control", "no-cache, no-store, must-revalidate, private")
	h.Set("Pragma", "no-cache")
	h.Set("Expires", "0")
	h.Set("X-Frame-Options", "DENY")
	h.Set("Referrer-Policy", "no-referrer")
}

// serveFileRange streams a full or partial asset body.
//
// Every request opens its own read-only handle, released when the copy
// finishes or the client disconnects; handles are never shared between
// requests. rangeSpec is the raw Range header, empty for a full-body request.
func serveFileRange(w http.ResponseWriter, path string, rangeSpec string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	size := info.Size()

	if rangeSpec == "" {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
		w.WriteHeader(http.StatusOK)
		if _, err := io.Copy(w, f); err != nil {
			// 客户端中途断开是常态，不算故障
			logger.Debug("流式传输中断", logger.String("path", path), logger.ErrorField(err))
		}
		return nil
	}

	rng, err := parseRange(rangeSpec, size)
	if err != nil {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		respondError(w, http.StatusRequestedRangeNotSatisfiable, "Range not satisfiable")
		return nil
	}

	if _, err := f.Seek(rng.start, io.SeekStart); err != nil {
		return err
	}

	w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", rng.start, rng.end, size))
	w.Header().Set("Content-Length", strconv.FormatInt(rng.length(), 10))
	w.WriteHeader(http.StatusPartialContent)

	if _, err := io.CopyN(w, f, rng.length()); err != nil {
		logger.Debug("分段传输中断", logger.String("path", path), logger.ErrorField(err))
	}
	return nil
}
