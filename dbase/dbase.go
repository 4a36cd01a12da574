// Package dbase decodes dBase-family tables (.DBF) and their memo files (.DBT/.FPT).
//
// Supported are dBase II (8 byte mini header, 16 byte field descriptors),
// dBase III/IV/V, FoxBase, FoxPro 2.x, Clipper and Visual FoxPro, including
// the Visual FoxPro field displacement and null flag extensions. Tables that
// were not closed cleanly or carry damaged field tables are read as far as
// the data allows.
//
// Records are produced either as a stream (constant memory, Next or the
// Records iterator), materialized with Load for random access, or borrowed
// through a RecordView for allocation free hot loops. Owned rows convert to
// maps, JSON and Go structs.
package dbase
