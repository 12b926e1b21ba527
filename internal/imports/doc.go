// Package imports moves audio files dropped into the imports folder into the
// dated notes tree and queues them for transcription.
//
// Scanner finds files under <imports_dir>/pending and queues one
// process_import task per file. Processor handles that task: it moves the
// file to notes/YYYY/YYYY-MM-DD/HHMMSS-imported-<name><ext>, registers a
// pending record, queues a transcribe_imported task, and leaves a JSON
// manifest in <imports_dir>/processed.
package imports
