package codec

import (
	"encoding/binary"

	"github.com/TheMenageri3/deresearcher-program/internal/errors"
)

// MaxStringSize 有界字符串的固定容量（字节）
const MaxStringSize = 64

// PackString64 把字符串打包为64字节定长数组，不足部分补零
// 超出容量返回SizeOverflow，不产生部分写入
func PackString64(data string) ([MaxStringSize]byte, error) {
	var packed [MaxStringSize]byte

	if len(data) > MaxStringSize {
		return packed, errors.ErrSizeOverflow.WithContext("length", len(data))
	}

	copy(packed[:], data)

	return packed, nil
}

// UnpackString64 从64字节定长数组还原字符串，去掉补零部分
func UnpackString64(packed [MaxStringSize]byte) string {
	end := len(packed)
	for end > 0 && packed[end-1] == 0 {
		end--
	}
	return string(packed[:end])
}

// Writer 定宽二进制写入器
// 字段顺序即编码顺序，整数使用小端序，定长数组不带长度前缀
type Writer struct {
	buf []byte
}

// NewWriter 创建写入器（size为记录的固定大小，用于预分配）
func NewWriter(size int) *Writer {
	return &Writer{buf: make([]byte, 0, size)}
}

// WriteBytes 写入定长字节数组
func (w *Writer) WriteBytes(data []byte) {
	w.buf = append(w.buf, data...)
}

// WriteU8 写入无符号8位整数
func (w *Writer) WriteU8(v uint8) {
	w.buf = append(w.buf, v)
}

// WriteU32 写入无符号32位整数（小端序）
func (w *Writer) WriteU32(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

// WriteU64 写入无符号64位整数（小端序）
func (w *Writer) WriteU64(v uint64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
}

// Bytes 返回编码结果
func (w *Writer) Bytes() []byte {
	return w.buf
}

// Reader 定宽二进制读取器
// 任何越界读取都会被记住，解码方必须在使用结果前检查Err
type Reader struct {
	buf []byte
	off int
	err error
}

// NewReader 创建读取器
func NewReader(data []byte) *Reader {
	return &Reader{buf: data}
}

// ReadBytes 读取定长字节数组
func (r *Reader) ReadBytes(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.off+n > len(r.buf) {
		r.err = errors.ErrSerialization.WithContext("offset", r.off).WithContext("need", n)
		return nil
	}
	data := r.buf[r.off : r.off+n]
	r.off += n
	return data
}

// ReadU8 读取无符号8位整数
func (r *Reader) ReadU8() uint8 {
	data := r.ReadBytes(1)
	if data == nil {
		return 0
	}
	return data[0]
}

// ReadU32 读取无符号32位整数（小端序）
func (r *Reader) ReadU32() uint32 {
	data := r.ReadBytes(4)
	if data == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(data)
}

// ReadU64 读取无符号64位整数（小端序）
func (r *Reader) ReadU64() uint64 {
	data := r.ReadBytes(8)
	if data == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(data)
}

// Remaining 返回未读取的字节数
func (r *Reader) Remaining() int {
	return len(r.buf) - r.off
}

// Err 返回读取过程中发生的错误
func (r *Reader) Err() error {
	return r.err
}

// Finish 校验输入被完整消费且没有读取错误
// 截断或带尾部垃圾的记录都是致命的反序列化错误
func (r *Reader) Finish() error {
	if r.err != nil {
		return r.err
	}
	if r.Remaining() != 0 {
		return errors.ErrSerialization.WithContext("trailing_bytes", r.Remaining())
	}
	return nil
}
