package output

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/pthm-cable/riptide/mesh"
)

// MeshFormat selects the surface mesh encoding.
type MeshFormat int

const (
	FormatBOBJ MeshFormat = iota
	FormatPLY
)

// ParseMeshFormat maps the config string to a format.
func ParseMeshFormat(s string) MeshFormat {
	if s == "ply" {
		return FormatPLY
	}
	return FormatBOBJ
}

// EncodeMesh packs a triangle mesh into the selected format.
func EncodeMesh(m *mesh.TriangleMesh, format MeshFormat) []byte {
	if format == FormatPLY {
		return encodePLY(m)
	}
	return encodeBOBJ(m)
}

// encodeBOBJ writes the internal binary layout: vertex count, float32
// triples, triangle count, int32 index triples. Little endian
// throughout.
func encodeBOBJ(m *mesh.TriangleMesh) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, int32(len(m.Vertices)))
	for _, v := range m.Vertices {
		binary.Write(&buf, binary.LittleEndian, [3]float32{v.X, v.Y, v.Z})
	}
	binary.Write(&buf, binary.LittleEndian, int32(len(m.Triangles)))
	for _, t := range m.Triangles {
		binary.Write(&buf, binary.LittleEndian, [3]int32{int32(t.V[0]), int32(t.V[1]), int32(t.V[2])})
	}
	return buf.Bytes()
}

// encodePLY writes a binary little-endian PLY file.
func encodePLY(m *mesh.TriangleMesh) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "ply\n")
	fmt.Fprintf(&buf, "format binary_little_endian 1.0\n")
	fmt.Fprintf(&buf, "element vertex %d\n", len(m.Vertices))
	fmt.Fprintf(&buf, "property float x\n")
	fmt.Fprintf(&buf, "property float y\n")
	fmt.Fprintf(&buf, "property float z\n")
	fmt.Fprintf(&buf, "element face %d\n", len(m.Triangles))
	fmt.Fprintf(&buf, "property list uchar int vertex_index\n")
	fmt.Fprintf(&buf, "end_header\n")

	for _, v := range m.Vertices {
		binary.Write(&buf, binary.LittleEndian, [3]float32{v.X, v.Y, v.Z})
	}
	for _, t := range m.Triangles {
		buf.WriteByte(3)
		binary.Write(&buf, binary.LittleEndian, [3]int32{int32(t.V[0]), int32(t.V[1]), int32(t.V[2])})
	}
	return buf.Bytes()
}
