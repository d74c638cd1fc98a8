package util

import (
	"strconv"
)

// ParseUintParam 解析路径参数中的 ID，非法输入返回错误
func ParseUintParam(s string) (uint, error) {
	id, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, err
	}
	return uint(id), nil
}
