package server

import (
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"X402FM/logger"

	"github.com/gorilla/mux"
)

var (
	audioFilePattern = regexp.MustCompile(`(?i)\.(mp3|wav|ogg|m4a|flac)$`)
	coverNamePattern = regexp.MustCompile(`^([^_]+)_cover`)
)

// FileHandler 处理 GET /api/file/{path}，公开文件路由。
//
// 这条路由信任级别最低：音频一律拒绝（无论文件是否存在），
// 封面必须归属某个已存在的曲目，解析出的路径不得越出资源根目录。
// 音频只能走带会话校验的流端点。
func (h *APIHandler) FileHandler(w http.ResponseWriter, r *http.Request) {
	relPath := mux.Vars(r)["path"]
	if relPath == "" {
		respondError(w, http.StatusBadRequest, "Invalid file path")
		return
	}

	filename := filepath.Base(relPath)
	isCover := strings.Contains(filename, "_cover")

	if audioFilePattern.MatchString(filename) && !isCover {
		respondError(w, http.StatusForbidden, "Audio files must be accessed through the stream endpoint")
		return
	}

	fullPath, ok := h.resolveUnderUploadRoot(relPath)
	if !ok {
		logger.Warn("拦截路径穿越尝试", logger.String("path", relPath))
		respondError(w, http.StatusForbidden, "Access denied")
		return
	}

	if isCover {
		// 封面文件名形如 <trackId>_cover.<ext>，必须对应存在的曲目
		if m := coverNamePattern.FindStringSubmatch(filename); m != nil {
			track, err := h.trackRepo.GetTrackByID(m[1])
			if err != nil {
				logger.Error("查询封面归属曲目失败", logger.String("path", relPath), logger.ErrorField(err))
				respondError(w, http.StatusInternalServerError, "Failed to serve file")
				return
			}
			if track == nil {
				respondError(w, http.StatusNotFound, "Track not found")
				return
			}
		}
	}

	if _, err := os.Stat(fullPath); err != nil {
		respondError(w, http.StatusNotFound, "File not found")
		return
	}

	w.Header().Set("Content-Type", detectContentType(filename, "application/octet-stream"))
	w.Header().Set("Accept-Ranges", "bytes")
	if err := serveFileRange(w, fullPath, r.Header.Get("Range")); err != nil {
		logger.Error("读取公开文件失败", logger.String("path", relPath), logger.ErrorField(err))
	}
}

// resolveUnderUploadRoot 将请求路径解析到资源根目录下，
// 解析结果越出根目录时返回 false
func (h *APIHandler) resolveUnderUploadRoot(relPath string) (string, bool) {
	root, err := filepath.Abs(h.cfg.UploadDir)
	if err != nil {
		return "", false
	}
	full, err := filepath.Abs(filepath.Join(root, filepath.FromSlash(relPath)))
	if err != nil {
		return "", false
	}
	if full != root && !strings.HasPrefix(full, root+string(os.PathSeparator)) {
		return "", false
	}
	return full, true
}
