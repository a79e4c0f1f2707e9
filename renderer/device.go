package renderer

// Device is the graphics API the renderer drives. The host supplies it,
// bound to a current context on the render thread; the renderer never
// creates a window or surface.
//
// Handles are opaque uint32 names (GL object names in renderer/gles).
// Every method is called from the consumer context only.
type Device interface {
	// CompileProgram compiles and links a vertex/fragment shader pair.
	CompileProgram(vertexSrc, fragmentSrc string) (uint32, error)
	DeleteProgram(program uint32)

	// CreateQuad uploads QuadVertices into a vertex buffer.
	CreateQuad(vertices []float32) (uint32, error)
	DeleteQuad(quad uint32)

	// CreateTexture creates a single-channel texture object without storage.
	CreateTexture() (uint32, error)

	// AllocateTexture (re)defines the texture storage as width×height
	// 8-bit luminance.
	AllocateTexture(texture uint32, width, height int) error

	// UploadTexture replaces the texture contents. pix is tightly packed
	// (stride == width) and matches the allocated size.
	UploadTexture(texture uint32, width, height int, pix []byte) error
	DeleteTexture(texture uint32)

	Viewport(width, height int)

	// Clear fills the surface with the background colour.
	Clear()

	// Draw renders the quad sampling texture with program.
	Draw(program, quad, texture uint32) error
}

// VertexShader passes clip-space positions and texture coordinates through.
const VertexShader = `
attribute vec2 aPosition;
attribute vec2 aTexCoord;
varying vec2 vTexCoord;

void main() {
    gl_Position = vec4(aPosition, 0.0, 1.0);
    vTexCoord = aTexCoord;
}
`

// FragmentShader shows the single-channel edge texture as grey.
const FragmentShader = `
precision mediump float;
varying vec2 vTexCoord;
uniform sampler2D uTexture;

void main() {
    float e = texture2D(uTexture, vTexCoord).r;
    gl_FragColor = vec4(e, e, e, 1.0);
}
`

// QuadVertices is a full-screen triangle strip: x, y, u, v per vertex.
// v is flipped so texture row 0 (the top image row) lands at the top.
var QuadVertices = []float32{
	-1, -1, 0, 1,
	1, -1, 1, 1,
	-1, 1, 0, 0,
	1, 1, 1, 0,
}
