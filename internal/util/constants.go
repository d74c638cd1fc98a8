package util

const (
	StorageLocal = "local"
	StorageMinio = "minio"
)

// 试卷文档上传相关常量
const (
	MimePDF         = "application/pdf"
	MimeWord        = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MimeOctetStream = "application/octet-stream"
)

// MaxExamFileSize 试卷文档上传大小上限（10MB）
const MaxExamFileSize = 10 << 20

var (
	AllowedExamFileExtensions = []string{".pdf", ".doc", ".docx", ".txt"}
)

// IsAllowedExamFileExtension 扩展名白名单校验（大小写不敏感由调用方保证）
func IsAllowedExamFileExtension(ext string) bool {
	for _, allowed := range AllowedExamFileExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}
