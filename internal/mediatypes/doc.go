// Package mediatypes classifies source files for the derived asset generator.
//
// It has no dependencies beyond the standard library so that the scanner,
// watcher, generator and catalog can all share it without import cycles.
//
// Classification is a closed set of [Kind] values. [Classify] starts from the
// extension and lets the file's magic bytes override it when they disagree:
//
//	kind := mediatypes.Classify(mediatypes.Ext(path), header)
//	switch kind {
//	case mediatypes.KindRaw:
//	    // convert, then thumbnail the converted copy
//	}
//
// [ExtensionSet] holds the configured extensions the scanner and watcher
// accept; extensions without a handler are rejected by [ParseExtensions].
package mediatypes
