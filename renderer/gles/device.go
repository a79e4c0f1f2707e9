// Package gles implements renderer.Device on OpenGL ES 2.0 through
// github.com/go-gl/gl/v3.1/gles2.
//
// The device assumes a current GL context on the calling goroutine, which
// must be locked to its OS thread (runtime.LockOSThread).
package gles

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-gl/gl/v3.1/gles2"

	"github.com/kartik-911/Real-Time-Edge-Detection-Viewer/renderer"
)

var _ renderer.Device = (*Device)(nil)

// ErrNoContext reports a failed gles2.Init (no current context or missing
// entry points).
var ErrNoContext = errors.New("gles: no usable GL context")

// Device drives the edge texture quad.
type Device struct {
	posAttrib uint32
	texAttrib uint32
	sampler   int32

	clearR, clearG, clearB float32
}

// New loads the GL entry points of the current context.
func New() (*Device, error) {
	if err := gles2.Init(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoContext, err)
	}
	return &Device{}, nil
}

// Version returns the GL_VERSION string of the current context.
func (d *Device) Version() string {
	return gles2.GoStr(gles2.GetString(gles2.VERSION))
}

// SetClearColor sets the background shown before the first frame.
func (d *Device) SetClearColor(r, g, b float32) {
	d.clearR, d.clearG, d.clearB = r, g, b
}

// CompileProgram compiles and links the shader pair and resolves the
// attribute and sampler locations the quad needs.
func (d *Device) CompileProgram(vertexSrc, fragmentSrc string) (uint32, error) {
	vs, err := compileShader(vertexSrc, gles2.VERTEX_SHADER)
	if err != nil {
		return 0, err
	}
	defer gles2.DeleteShader(vs)

	fs, err := compileShader(fragmentSrc, gles2.FRAGMENT_SHADER)
	if err != nil {
		return 0, err
	}
	defer gles2.DeleteShader(fs)

	program := gles2.CreateProgram()
	gles2.AttachShader(program, vs)
	gles2.AttachShader(program, fs)
	gles2.LinkProgram(program)

	var status int32
	gles2.GetProgramiv(program, gles2.LINK_STATUS, &status)
	if status == gles2.FALSE {
		var n int32
		gles2.GetProgramiv(program, gles2.INFO_LOG_LENGTH, &n)
		log := strings.Repeat("\x00", int(n+1))
		gles2.GetProgramInfoLog(program, n, nil, gles2.Str(log))
		gles2.DeleteProgram(program)
		return 0, fmt.Errorf("gles: link program: %s", strings.TrimRight(log, "\x00"))
	}

	pos := gles2.GetAttribLocation(program, gles2.Str("aPosition\x00"))
	tex := gles2.GetAttribLocation(program, gles2.Str("aTexCoord\x00"))
	if pos < 0 || tex < 0 {
		gles2.DeleteProgram(program)
		return 0, fmt.Errorf("gles: program lacks aPosition/aTexCoord attributes")
	}
	d.posAttrib, d.texAttrib = uint32(pos), uint32(tex)
	d.sampler = gles2.GetUniformLocation(program, gles2.Str("uTexture\x00"))

	return program, nil
}

func compileShader(src string, kind uint32) (uint32, error) {
	shader := gles2.CreateShader(kind)

	csrc, free := gles2.Strs(src + "\x00")
	gles2.ShaderSource(shader, 1, csrc, nil)
	free()
	gles2.CompileShader(shader)

	var status int32
	gles2.GetShaderiv(shader, gles2.COMPILE_STATUS, &status)
	if status == gles2.FALSE {
		var n int32
		gles2.GetShaderiv(shader, gles2.INFO_LOG_LENGTH, &n)
		log := strings.Repeat("\x00", int(n+1))
		gles2.GetShaderInfoLog(shader, n, nil, gles2.Str(log))
		gles2.DeleteShader(shader)
		return 0, fmt.Errorf("gles: compile shader: %s", strings.TrimRight(log, "\x00"))
	}
	return shader, nil
}

// DeleteProgram frees a program.
func (d *Device) DeleteProgram(program uint32) {
	gles2.DeleteProgram(program)
}

// CreateQuad uploads interleaved x, y, u, v vertices into a static buffer.
func (d *Device) CreateQuad(vertices []float32) (uint32, error) {
	var vbo uint32
	gles2.GenBuffers(1, &vbo)
	gles2.BindBuffer(gles2.ARRAY_BUFFER, vbo)
	gles2.BufferData(gles2.ARRAY_BUFFER, len(vertices)*4, gles2.Ptr(vertices), gles2.STATIC_DRAW)
	gles2.BindBuffer(gles2.ARRAY_BUFFER, 0)

	if err := glError("create quad"); err != nil {
		gles2.DeleteBuffers(1, &vbo)
		return 0, err
	}
	return vbo, nil
}

// DeleteQuad frees a vertex buffer.
func (d *Device) DeleteQuad(quad uint32) {
	gles2.DeleteBuffers(1, &quad)
}

// CreateTexture creates a clamped, linearly filtered texture object.
func (d *Device) CreateTexture() (uint32, error) {
	var tex uint32
	gles2.GenTextures(1, &tex)
	gles2.BindTexture(gles2.TEXTURE_2D, tex)
	gles2.TexParameteri(gles2.TEXTURE_2D, gles2.TEXTURE_MIN_FILTER, gles2.LINEAR)
	gles2.TexParameteri(gles2.TEXTURE_2D, gles2.TEXTURE_MAG_FILTER, gles2.LINEAR)
	gles2.TexParameteri(gles2.TEXTURE_2D, gles2.TEXTURE_WRAP_S, gles2.CLAMP_TO_EDGE)
	gles2.TexParameteri(gles2.TEXTURE_2D, gles2.TEXTURE_WRAP_T, gles2.CLAMP_TO_EDGE)

	if err := glError("create texture"); err != nil {
		gles2.DeleteTextures(1, &tex)
		return 0, err
	}
	return tex, nil
}

// AllocateTexture defines width×height GL_LUMINANCE storage.
func (d *Device) AllocateTexture(texture uint32, width, height int) error {
	gles2.BindTexture(gles2.TEXTURE_2D, texture)
	gles2.TexImage2D(gles2.TEXTURE_2D, 0, gles2.LUMINANCE, int32(width), int32(height), 0,
		gles2.LUMINANCE, gles2.UNSIGNED_BYTE, nil)
	return glError("allocate texture")
}

// UploadTexture replaces the texture contents. Rows are tightly packed, so
// the unpack alignment is 1 (edge maps have arbitrary widths).
func (d *Device) UploadTexture(texture uint32, width, height int, pix []byte) error {
	if len(pix) < width*height {
		return fmt.Errorf("gles: upload %d bytes for %dx%d", len(pix), width, height)
	}
	gles2.BindTexture(gles2.TEXTURE_2D, texture)
	gles2.PixelStorei(gles2.UNPACK_ALIGNMENT, 1)
	gles2.TexSubImage2D(gles2.TEXTURE_2D, 0, 0, 0, int32(width), int32(height),
		gles2.LUMINANCE, gles2.UNSIGNED_BYTE, gles2.Ptr(pix))
	return glError("upload texture")
}

// DeleteTexture frees a texture object.
func (d *Device) DeleteTexture(texture uint32) {
	gles2.DeleteTextures(1, &texture)
}

// Viewport maps the quad onto the whole surface.
func (d *Device) Viewport(width, height int) {
	gles2.Viewport(0, 0, int32(width), int32(height))
}

// Clear fills the surface with the clear colour.
func (d *Device) Clear() {
	gles2.ClearColor(d.clearR, d.clearG, d.clearB, 1)
	gles2.Clear(gles2.COLOR_BUFFER_BIT)
}

// Draw renders the textured quad as a 4-vertex triangle strip.
func (d *Device) Draw(program, quad, texture uint32) error {
	d.Clear()

	gles2.UseProgram(program)
	gles2.ActiveTexture(gles2.TEXTURE0)
	gles2.BindTexture(gles2.TEXTURE_2D, texture)
	gles2.Uniform1i(d.sampler, 0)

	const stride = 4 * 4
	gles2.BindBuffer(gles2.ARRAY_BUFFER, quad)
	gles2.EnableVertexAttribArray(d.posAttrib)
	gles2.VertexAttribPointer(d.posAttrib, 2, gles2.FLOAT, false, stride, gles2.PtrOffset(0))
	gles2.EnableVertexAttribArray(d.texAttrib)
	gles2.VertexAttribPointer(d.texAttrib, 2, gles2.FLOAT, false, stride, gles2.PtrOffset(2*4))

	gles2.DrawArrays(gles2.TRIANGLE_STRIP, 0, 4)

	gles2.DisableVertexAttribArray(d.posAttrib)
	gles2.DisableVertexAttribArray(d.texAttrib)
	gles2.BindBuffer(gles2.ARRAY_BUFFER, 0)

	return glError("draw")
}

func glError(op string) error {
	if code := gles2.GetError(); code != gles2.NO_ERROR {
		return fmt.Errorf("gles: %s: GL error 0x%04X", op, code)
	}
	return nil
}
