package meta_store

import (
	"github.com/Malowking/ragkb/core/errors"
	"github.com/bytedance/sonic"
)

// 整数解码为 int64，其余数字为 float64，保证属性值往返不丢精度
var jsonAPI = sonic.Config{UseInt64: true}.Froze()

func encodeValue(v any) (string, error) {
	s, err := jsonAPI.MarshalToString(v)
	if err != nil {
		return "", errors.Wrapf(errors.ErrMetaStore, err, "failed to encode attribute value %v", v)
	}
	return s, nil
}

func decodeValue(s string) (any, error) {
	var v any
	if err := jsonAPI.UnmarshalFromString(s, &v); err != nil {
		return nil, errors.Wrapf(errors.ErrMetaDecode, err, "failed to decode attribute value %q", s)
	}
	return v, nil
}

// encodeAttributes 整条记录序列化为一个 JSON 对象
func encodeAttributes(attrs Attributes) (string, error) {
	if len(attrs) == 0 {
		return "{}", nil
	}
	s, err := jsonAPI.MarshalToString(map[string]any(attrs))
	if err != nil {
		return "", errors.Wrap(errors.ErrMetaStore, err, "failed to encode attributes")
	}
	return s, nil
}

func decodeAttributes(s string) (Attributes, error) {
	if s == "" {
		return Attributes{}, nil
	}
	var m map[string]any
	if err := jsonAPI.UnmarshalFromString(s, &m); err != nil {
		return nil, errors.Wrapf(errors.ErrMetaDecode, err, "failed to decode attributes %q", s)
	}
	if m == nil {
		return Attributes{}, nil
	}
	return Attributes(m), nil
}

// decodeHash 解码 Redis Hash：每个字段是一个独立的 JSON 值
func decodeHash(raw map[string]string) (Attributes, error) {
	out := make(Attributes, len(raw))
	for k, v := range raw {
		dv, err := decodeValue(v)
		if err != nil {
			return nil, err
		}
		out[k] = dv
	}
	return out, nil
}

// Normalize 将属性经过一次编解码，得到与持久化后端读出时一致的值类型
func Normalize(attrs Attributes) (Attributes, error) {
	s, err := encodeAttributes(attrs)
	if err != nil {
		return nil, err
	}
	return decodeAttributes(s)
}

// ParseAttributes 解析 JSON 对象形式的属性，空串返回空 map
func ParseAttributes(s string) (Attributes, error) {
	attrs, err := decodeAttributes(s)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInvalidParameter, err, "attributes must be a JSON object")
	}
	return attrs, nil
}

// ParseValue 把命令行传入的值按 JSON 解析，不是合法 JSON 时原样作为字符串
func ParseValue(s string) any {
	v, err := decodeValue(s)
	if err != nil {
		return s
	}
	return v
}
