// Package utxooracle answers "is this outpoint currently unspent, and if so
// what is its value and script" queries against a set of full-node peers,
// and batches many concurrent callers into one peer round trip.
package utxooracle
