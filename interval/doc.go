/*Package interval implements interval-union operations for sets of genomic
  regions, such as the targets of a capture kit loaded from a BED file.
  Overlapping and touching intervals are merged, not tracked separately.
  Contig names are compared without a "chr" prefix.
*/
package interval
