package gpu

import "fmt"

// WriteDiscard maps buf for a discard write, lets fill populate the whole
// buffer, and unmaps it. Unmap runs even if fill panics.
func WriteDiscard(ctx Context, buf Buffer, fill func(dst []byte)) (err error) {
	if buf == nil {
		return fmt.Errorf("write discard: %w", ErrReleased)
	}
	dst, err := ctx.Map(buf, MapWriteDiscard)
	if err != nil {
		return fmt.Errorf("map %s: %w", buf.Label(), err)
	}
	defer func() {
		if uerr := ctx.Unmap(buf); uerr != nil && err == nil {
			err = fmt.Errorf("unmap %s: %w", buf.Label(), uerr)
		}
	}()
	if uint64(len(dst)) < buf.Size() {
		return fmt.Errorf("map %s: got %d bytes, want %d", buf.Label(), len(dst), buf.Size())
	}
	fill(dst[:buf.Size()])
	return nil
}
