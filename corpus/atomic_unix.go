//go:build !windows

package corpus

import (
	"os"

	"github.com/google/renameio/v2"
)

// atomicWriteFile 原子替换目标文件
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	return renameio.WriteFile(path, data, perm)
}
