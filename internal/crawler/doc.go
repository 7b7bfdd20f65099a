// Package crawler defines the record types, task plumbing and collaborator
// interfaces shared by the wiki crawler's subsystems.
//
// Records come in four kinds of page (item, tale, goi, supplement) plus hubs.
// Paginated hubs split their link lists across fragment pages; the hubmerge
// package joins those back onto the hub before a record is written.
package crawler
