package feature

import (
	"strconv"
	"strings"
)

const (
	tableKeyJoin   = "_"
	tableValueJoin = ","
)

// TableValues 是单个文档 table 特征解码后的值，key 为 name_i。
type TableValues map[string]float64

// DecodeTable 把逗号分隔的 value 解码到 into：第 i 个元素写入 name_i，无法解析的元素记为 0。
// 空白 value 不写入任何值，末尾的空元素被丢弃。
func DecodeTable(name, value string, into TableValues) {
	if strings.TrimSpace(value) == "" {
		return
	}
	parts := strings.Split(value, tableValueJoin)
	for len(parts) > 0 && parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	for i, part := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			f = 0
		}
		into[TableKey(name, i)] = f
	}
}

// TableKey 返回 key_offset。
func TableKey(key string, offset int) string {
	return key + tableKeyJoin + strconv.Itoa(offset)
}

// Get 读取 key_offset，不存在时为 0。
func (t TableValues) Get(key string, offset int) float64 {
	if len(t) == 0 {
		return 0
	}
	return t[TableKey(key, offset)]
}
