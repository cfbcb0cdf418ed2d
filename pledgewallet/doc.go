// Package pledgewallet extends a standard btcwallet.Wallet with the
// ability to form, track, revoke, and observe the fate of pledges. It adds
// no new on-disk format of its own: pledge state is persisted as a
// side-table extension inside the wallet's own proto (see persist.go), so
// a plain wallet tool can still open the file.
package pledgewallet
