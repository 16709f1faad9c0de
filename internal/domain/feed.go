package domain

import (
	"fmt"
	"strings"
	"time"
)

// FeedName идентифицирует вариант фида (свой набор шаблонов и своя аудитория).
// Множество значений закрыто и известно на этапе компиляции.
type FeedName string

const (
	FeedExample  FeedName = "example"
	FeedExample2 FeedName = "example2"
)

// AllFeedNames возвращает все варианты фидов в порядке генерации.
func AllFeedNames() []FeedName {
	return []FeedName{FeedExample, FeedExample2}
}

// ParseFeedName преобразует строку из конфигурации в FeedName.
func ParseFeedName(s string) (FeedName, error) {
	for _, name := range AllFeedNames() {
		if string(name) == s {
			return name, nil
		}
	}
	return "", fmt.Errorf("unknown feed name %q", s)
}

func (n FeedName) String() string { return string(n) }

// Compression определяет вид сжатия артефакта и суффикс его ключа.
type Compression string

const (
	CompressionNone Compression = ""
	CompressionZip  Compression = "zip"
	CompressionGzip Compression = "gz"
)

// ParseCompression принимает "zip", "gz"/"gzip" и пустую строку.
func ParseCompression(s string) (Compression, error) {
	switch s {
	case "", "none":
		return CompressionNone, nil
	case "zip":
		return CompressionZip, nil
	case "gz", "gzip":
		return CompressionGzip, nil
	default:
		return "", fmt.Errorf("unknown compression %q", s)
	}
}

func (c Compression) String() string {
	if c == CompressionNone {
		return "none"
	}
	return string(c)
}

const (
	feedExtension = "yml"
	publicPrefix  = "feed_"
	tmpPrefix     = "new_" + publicPrefix
)

// FileName возвращает имя файла, под которым фид отдается клиенту: feed.yml[.zip|.gz].
func FileName(c Compression) string {
	name := "feed." + feedExtension
	if c != CompressionNone {
		name += "." + string(c)
	}
	return name
}

// ContentType возвращает MIME-тип артефакта с данным видом сжатия.
func ContentType(c Compression) string {
	switch c {
	case CompressionZip:
		return "application/zip"
	case CompressionGzip:
		return "application/gzip"
	default:
		return "application/xml"
	}
}

// ContentTypeForKey определяет MIME-тип по суффиксу ключа.
func ContentTypeForKey(key string) string {
	switch {
	case strings.HasSuffix(key, "."+string(CompressionZip)):
		return ContentType(CompressionZip)
	case strings.HasSuffix(key, "."+string(CompressionGzip)):
		return ContentType(CompressionGzip)
	default:
		return ContentType(CompressionNone)
	}
}

// ArtifactKey вычисляет ключ объекта в хранилище.
// Публичный ключ: feed_{name}_.yml[.{compression}], временный: new_feed_{name}_.yml[.{compression}].
// Временный и публичный ключи никогда не совпадают.
func ArtifactKey(name FeedName, c Compression, tmp bool) string {
	prefix := publicPrefix
	if tmp {
		prefix = tmpPrefix
	}
	key := prefix + string(name) + "_." + feedExtension
	if c != CompressionNone {
		key += "." + string(c)
	}
	return key
}

// PublicKey - ключ, видимый читателям.
func PublicKey(name FeedName, c Compression) string { return ArtifactKey(name, c, false) }

// TmpKey - ключ, в который пишется новая версия до публикации.
func TmpKey(name FeedName, c Compression) string { return ArtifactKey(name, c, true) }

// ObjectInfo содержит метаданные объекта хранилища.
type ObjectInfo struct {
	Key          string
	ETag         string
	Size         int64
	ContentType  string
	LastModified time.Time
}
