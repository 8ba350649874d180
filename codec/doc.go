// Package codec implements the three payload encodings a packet can carry.
//
//   - Binary (B): CBOR with Core Deterministic Encoding. Byte slices are
//     CBOR byte strings, so they keep their length and are never base64'd.
//   - JSON (J): UTF-8 JSON text without a BOM.
//   - Value (R): an in-process tagged tree ([Value]) covering the common
//     value model: nil, bool, signed and unsigned integers, floats, strings,
//     bytes, sequences and string-keyed maps.
//
// Values move between encodings through [Value]: J text is parsed into a
// tree (integers stay integers) and the tree is written as B. Every failure
// is an *errors.Error of kind codec_encode or codec_decode.
package codec
