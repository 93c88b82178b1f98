// Package release resolves, downloads and unpacks GLPI release archives.
//
// A version is either a pinned tag such as "10.0.16", turned into a download
// URL through a fixed template, or "latest", resolved by querying the GitHub
// release listing for the newest glpi-*.tgz asset.
//
// Archives are gzip-compressed tarballs whose entries live under a single
// top-level "glpi/" directory. Extract strips that directory so the
// application lands directly in the deployment directory. Entries that would
// escape the destination are rejected with bootstrap.ErrArchiveInvalid.
package release
