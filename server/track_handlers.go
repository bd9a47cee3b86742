package server

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"X402FM/logger"
	"X402FM/model"
	"X402FM/storage"

	"github.com/google/uuid"
)

// maxUploadSize 单次上传的内存解析上限，超出部分落临时文件
const maxUploadSize = 64 << 20

// GetTracksHandler 处理 GET /api/tracks，返回公开目录（不含音频路径与收款地址）
func (h *APIHandler) GetTracksHandler(w http.ResponseWriter, r *http.Request) {
	tracks, err := h.trackRepo.GetAllTracks()
	if err != nil {
		logger.Error("查询曲目列表失败", logger.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "Failed to fetch tracks")
		return
	}

	publicTracks := make([]map[string]interface{}, 0, len(tracks))
	for _, t := range tracks {
		publicTracks = append(publicTracks, t.PublicView())
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"tracks": publicTracks})
}

// GetArtistTracksHandler 处理 GET /api/artist/tracks?artistWallet=，
// 返回该钱包上传的全部曲目
func (h *APIHandler) GetArtistTracksHandler(w http.ResponseWriter, r *http.Request) {
	wallet := r.URL.Query().Get("artistWallet")
	if wallet == "" {
		respondError(w, http.StatusBadRequest, "Artist wallet address required")
		return
	}

	tracks, err := h.trackRepo.GetTracksByArtistWallet(wallet)
	if err != nil {
		logger.Error("查询艺人曲目失败", logger.String("artistWallet", wallet), logger.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "Failed to fetch tracks")
		return
	}

	artistTracks := make([]map[string]interface{}, 0, len(tracks))
	for _, t := range tracks {
		view := t.PublicView()
		view["audioUrl"] = "/api/file/" + t.AudioPath
		artistTracks = append(artistTracks, view)
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"tracks": artistTracks})
}

// UploadTrackHandler 处理 POST /api/upload：
// multipart 表单接收音频与可选封面，落盘后写入曲目记录，
// 配置了对象存储时再做一份镜像。
func (h *APIHandler) UploadTrackHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}

	title := strings.TrimSpace(r.FormValue("title"))
	artist := strings.TrimSpace(r.FormValue("artist"))
	if artist == "" {
		artist = "Unknown Artist"
	}
	description := r.FormValue("description")
	artistWallet := strings.TrimSpace(r.FormValue("artistWallet"))

	price, err := strconv.ParseFloat(r.FormValue("price"), 64)
	if err != nil || price <= 0 {
		respondError(w, http.StatusBadRequest, "Invalid price")
		return
	}

	audioFile, audioHeader, err := r.FormFile("audio")
	if title == "" || err != nil {
		respondError(w, http.StatusBadRequest, "Missing required fields")
		return
	}
	defer audioFile.Close()

	if artistWallet == "" {
		respondError(w, http.StatusBadRequest, "Artist wallet address required")
		return
	}

	trackID := uuid.NewString()

	audioExt := safeExt(audioHeader.Filename, ".mp3")
	audioName := trackID + audioExt
	audioDisk := filepath.Join(h.cfg.AudioUploadDir, audioName)
	if err := saveMultipartFile(audioFile, audioDisk); err != nil {
		logger.Error("保存音频文件失败", logger.String("trackId", trackID), logger.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "Upload failed")
		return
	}

	coverPath := ""
	if coverFile, coverHeader, err := r.FormFile("cover"); err == nil {
		defer coverFile.Close()
		coverExt := safeExt(coverHeader.Filename, ".jpg")
		coverName := fmt.Sprintf("%s_cover%s", trackID, coverExt)
		coverDisk := filepath.Join(h.cfg.CoverUploadDir, coverName)
		if err := saveMultipartFile(coverFile, coverDisk); err != nil {
			logger.Error("保存封面文件失败", logger.String("trackId", trackID), logger.ErrorField(err))
			respondError(w, http.StatusInternalServerError, "Upload failed")
			return
		}
		coverPath = "/api/file/covers/" + coverName

		// 镜像到对象存储，失败只记日志
		storage.MirrorAsset(r.Context(), "covers/"+coverName, coverDisk, detectContentType(coverName, "image/jpeg"))
	}

	track := &model.Track{
		ID:           trackID,
		Title:        title,
		Artist:       artist,
		Description:  description,
		AudioPath:    "audio/" + audioName,
		CoverPath:    coverPath,
		Price:        price,
		ArtistWallet: artistWallet,
	}
	if err := h.trackRepo.CreateTrack(track); err != nil {
		logger.Error("写入曲目记录失败", logger.String("trackId", trackID), logger.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "Upload failed")
		return
	}

	storage.MirrorAsset(r.Context(), "audio/"+audioName, audioDisk, detectContentType(audioName, "audio/mpeg"))

	logger.Info("曲目上传完成",
		logger.String("trackId", trackID),
		logger.String("title", title),
		logger.Float64("price", price))

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"trackId": trackID,
		"message": "Track uploaded successfully",
	})
}

// safeExt 取原始文件名的扩展名，剔除路径成分，缺失时用默认值
func safeExt(filename, fallback string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(filename)))
	if ext == "" || strings.ContainsAny(ext, `/\`) {
		return fallback
	}
	return ext
}

// saveMultipartFile 将上传内容写入磁盘
func saveMultipartFile(src multipart.File, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("failed to create upload directory: %w", err)
	}
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create file %s: %w", dst, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, src); err != nil {
		os.Remove(dst)
		return fmt.Errorf("failed to write file %s: %w", dst, err)
	}
	return nil
}
