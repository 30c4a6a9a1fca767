package photo

// Photo is a captured still image ready for upload.
type Photo struct {
	Data     []byte `json:"-"`
	MIMEType string `json:"mimeType"`
	FileName string `json:"fileName"`
}

// UploadResult 图片分析结果
type UploadResult struct {
	ImageURL string `json:"imageUrl"`
	Text     string `json:"text"`
}
